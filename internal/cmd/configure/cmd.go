// Package configure implements the `configure` command.
package configure

import (
	"errors"
	"os"
	"strings"

	"github.com/AlecAivazis/survey/v2"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/rosterlabs/signsync/internal/credentials"
	"github.com/rosterlabs/signsync/internal/msg"
)

var (
	configureUse     = "configure"
	configureShort   = "Configure your signing-service credentials"
	configureLong    = `Persist locally your signing-service integration key`
	configureExample = "signsync configure"
	cliKey           = ""
)

// Command creates the `configure` command
func Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:     configureUse,
		Short:   configureShort,
		Long:    configureLong,
		Example: configureExample,
		Run: func(_ *cobra.Command, _ []string) {
			if err := Run(); err != nil {
				log.Err(err).Msg("failed to execute configure command")
				os.Exit(1)
			}
		},
	}
	cmd.Flags().StringVarP(&cliKey, "key", "k", "", "integration key, available in your signing-service account")
	return cmd
}

// interactiveConfiguration expects the user to manually type in the key
func interactiveConfiguration() (credentials.Credentials, error) {
	creds := credentials.Get()

	println("") // visual paragraph break
	qs := []*survey.Question{
		{
			Name: "integrationKey",
			Prompt: &survey.Password{
				Message: "Signing-service integration key",
			},
			Validate: func(val interface{}) error {
				str, ok := val.(string)
				if !ok {
					return errors.New(msg.InvalidIntegrationKey)
				}
				str = strings.TrimSpace(str)
				if str == "" {
					return errors.New(msg.EmptyIntegrationKey)
				}
				return nil
			},
		},
	}

	if err := survey.Ask(qs, &creds); err != nil {
		return creds, err
	}
	println() // visual paragraph break
	return creds, nil
}

// Run starts the configure command
func Run() error {
	var creds credentials.Credentials
	var err error

	if cliKey == "" {
		creds, err = interactiveConfiguration()
	} else {
		creds = credentials.Credentials{IntegrationKey: cliKey}
	}
	if err != nil {
		return err
	}

	if !creds.IsSet() {
		return errors.New(msg.InvalidIntegrationKey)
	}

	if err := credentials.ToFile(creds); err != nil {
		log.Err(err).Msg(msg.UnableToSaveCredentials)
		return err
	}

	log.Info().Msg("Credentials saved")
	return nil
}
