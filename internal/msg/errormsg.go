package msg

// credentials
const (
	// InvalidIntegrationKey indicates an invalid integration key
	InvalidIntegrationKey = "invalid integration key"
	// EmptyIntegrationKey asks the user to type an integration key
	EmptyIntegrationKey = "you need to type an integration key"
	// EmptyCredentials indicates no credentials
	EmptyCredentials = "no credentials available"
	// UnableToSaveCredentials indicates a failure while persisting credentials
	UnableToSaveCredentials = "unable to save credentials"
)

// config
const (
	// MissingConfigFile indicates that no sync config file was provided
	MissingConfigFile = "no config file was provided"
	// UnableToLocateConfig indicates the sync config file could not be found
	UnableToLocateConfig = "failed to locate sync config: %v"
	// MissingOrgs indicates that the sync config declares no organizations
	MissingOrgs = "no sign organizations configured"
	// MissingMappings indicates that the sync config declares no group mappings
	MissingMappings = "no group mappings configured"
	// DuplicateOrg indicates that two organizations share the same name
	DuplicateOrg = "duplicate organization name: %s"
	// InvalidIdentitySource indicates an unknown identity source type
	InvalidIdentitySource = "unknown identity source type: %s"
)

// sync
const (
	// UnableToFetchRoster indicates that the remote roster could not be read
	UnableToFetchRoster = "unable to fetch roster"
	// SignOnlyLimitExceeded warns that deactivation was refused for safety
	SignOnlyLimitExceeded = "sign-only user count (%d) exceeds the limit (%d); refusing to deactivate"
)
