package cmd

import (
	"fmt"

	mcobra "github.com/muesli/mango-cobra"
	"github.com/muesli/roff"
	"github.com/spf13/cobra"
)

const manEnvironment = "Every setting can also be given through the environment: " +
	"MODEL_API, MODEL_NAME, MODEL_API_KEY, TAVILY_API_KEY, TAVILY_MAX_RESULTS, TAVILY_DISABLE, " +
	"SERVER_HOST, SERVER_PORT, SERVER_CORS_ORIGINS, STORE_DRIVER, STORE_PATH, LOG_LEVEL and LOG_FORMAT. " +
	"Environment values win over the settings file."

func newManCmd(root *cobra.Command) *cobra.Command {
	return &cobra.Command{
		Use:                   "man",
		Short:                 "Generates manpages",
		DisableFlagsInUseLine: true,
		Hidden:                true,
		Args:                  cobra.NoArgs,
		Annotations:           map[string]string{skipConfig: "true"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			page, err := manPage(root)
			if err != nil {
				return err
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), page)
			return err
		},
	}
}

func manPage(root *cobra.Command) (string, error) {
	page, err := mcobra.NewManPage(1, root)
	if err != nil {
		return "", fmt.Errorf("build man page: %w", err)
	}
	page = page.WithSection("Environment", manEnvironment).
		WithSection("Files", "~/.config/threadline/threadline.yml, created by threadline config init.")
	return page.Build(roff.NewDocument()), nil
}
