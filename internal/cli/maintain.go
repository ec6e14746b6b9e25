package cli

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/stratamem/strata/internal/horizon"
	"github.com/stratamem/strata/internal/lifecycle"
	"github.com/stratamem/strata/internal/llm"
	"github.com/stratamem/strata/internal/memory"
)

var maintainHorizon bool

var maintainCmd = &cobra.Command{
	Use:   "maintain",
	Short: "Run one full maintenance pass (decay, promotion, vacuum)",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		run, err := lifecycle.New(st, cfg.Lifecycle.Policy).RunAll(cmd.Context())
		if err != nil {
			return err
		}

		if maintainHorizon {
			client, err := llm.NewClient(cfg.LLM)
			if err != nil {
				warnf("LLM not configured (%v), skipping horizon pass", err)
			} else {
				predictor := horizon.New(st, client)
				for _, tier := range []memory.Tier{memory.TierWorking, memory.TierShortTerm} {
					if _, err := predictor.AnnotateTier(cmd.Context(), tier); err != nil {
						warnf("horizon pass %s: %v", tier, err)
					}
				}
			}
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(run)
	},
}

func init() {
	maintainCmd.Flags().BoolVar(&maintainHorizon, "horizon", false, "also run horizon prediction on fresh tiers")
}
