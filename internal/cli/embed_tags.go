package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/stratamem/strata/internal/tagembed"
)

var embedTagsForce bool

var embedTagsCmd = &cobra.Command{
	Use:   "embed-tags",
	Short: "Embed every tag used by any chunk",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		emb := buildEmbedder(cmd.Context(), st)
		if emb == nil {
			return fmt.Errorf("no embedder available")
		}

		res, err := tagembed.New(st, emb).EmbedAllTags(cmd.Context(), embedTagsForce)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	},
}

func init() {
	embedTagsCmd.Flags().BoolVar(&embedTagsForce, "force", false, "re-embed tags that already have vectors")
}
