package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/iamvkosarev/persona-chat/internal/model"
	"github.com/iamvkosarev/persona-chat/internal/usecase"
)

var personasJSON bool

var personasCmd = &cobra.Command{
	Use:   "personas",
	Short: "List the configured personas",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		personas := usecase.DefaultPersonas(
			usecase.PersonaModels{Fast: cfg.LLM.FastModel, Quality: cfg.LLM.QualityModel},
		)
		if cfg.PersonasFile != "" {
			if personas, err = usecase.LoadPersonas(cfg.PersonasFile); err != nil {
				return err
			}
		}
		return printPersonas(cmd.OutOrStdout(), personas, personasJSON)
	},
}

func init() {
	personasCmd.Flags().BoolVar(&personasJSON, "json", false, "print as JSON")
}

func printPersonas(w io.Writer, personas []model.Persona, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(personas)
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tMODEL\tFEATURES")
	for _, p := range personas {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", p.ID, p.DisplayName, p.Model, features(p.Features))
	}
	return tw.Flush()
}

func features(f model.Features) string {
	var out []byte
	add := func(on bool, name string) {
		if !on {
			return
		}
		if len(out) > 0 {
			out = append(out, ',')
		}
		out = append(out, name...)
	}
	add(f.WebSearch, "search")
	add(f.FileUpload, "files")
	add(f.Design, "design")
	add(f.Charts, "charts")
	add(f.DeepThinking, "thinking")
	add(f.Whiteboard, "whiteboard")
	add(f.Research, "research")
	if len(out) == 0 {
		return "-"
	}
	return string(out)
}
