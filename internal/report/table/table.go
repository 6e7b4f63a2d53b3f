// Package table renders the action summary of a sync run.
package table

import (
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/rosterlabs/signsync/internal/engine"
)

var defaultTableStyle = table.Style{
	Name: "signsync",
	Box: table.BoxStyle{
		BottomLeft:       "└",
		BottomRight:      "┘",
		BottomSeparator:  "",
		EmptySeparator:   text.RepeatAndTrim(" ", text.RuneCount("+")),
		Left:             "│",
		LeftSeparator:    "",
		MiddleHorizontal: "─",
		MiddleSeparator:  "",
		MiddleVertical:   "",
		PaddingLeft:      "  ",
		PaddingRight:     "  ",
		PageSeparator:    "\n",
		Right:            "│",
		RightSeparator:   "",
		TopLeft:          "┌",
		TopRight:         "┐",
		TopSeparator:     "",
		UnfinishedRow:    " ...",
	},
	Color: table.ColorOptionsDefault,
	Format: table.FormatOptions{
		Footer: text.FormatDefault,
		Header: text.FormatDefault,
		Row:    text.FormatDefault,
	},
	HTML: table.DefaultHTMLOptions,
	Options: table.Options{
		DrawBorder:      false,
		SeparateColumns: false,
		SeparateFooter:  true,
		SeparateHeader:  true,
		SeparateRows:    false,
	},
	Title: table.TitleOptionsDefault,
}

// Reporter renders a run result as a summary table.
type Reporter struct {
	Dst             io.Writer
	CreateUsers     bool
	DeactivateUsers bool
}

// Render writes the action summary table to Reporter.Dst.
func (r *Reporter) Render(res *engine.Result) {
	t := table.NewWriter()
	t.SetOutputMirror(r.Dst)
	t.SetStyle(defaultTableStyle)
	t.SuppressEmptyColumns()

	t.AppendHeader(table.Row{"Action Summary", "Count"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{
			Name:     "Action Summary",
			WidthMin: 50,
		},
		{
			Name:        "Count",
			Align:       text.AlignRight,
			AlignFooter: text.AlignRight,
		},
	})

	for _, row := range res.Summary(r.CreateUsers, r.DeactivateUsers) {
		t.AppendRow(table.Row{row.Label, row.Count})
	}

	t.Render()
}
