package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"lexhq/coinmeter/pkg/cli"
	"lexhq/coinmeter/pkg/config"
	"lexhq/coinmeter/pkg/pricing"
)

var pricingCmd = &cobra.Command{
	Use:   "pricing",
	Short: "Inspect the pricing catalog",
}

var pricingListFlags struct {
	format string
}

var pricingListCmd = &cobra.Command{
	Use:   "list",
	Short: "List pricing catalog entries",
	Long: `List every entry in the configured pricing catalog.

Examples:
  # Human-readable table
  coinmeter pricing list

  # Machine-readable output
  coinmeter pricing list --format json`,
	RunE: listPricing,
}

var pricingPreviewFlags struct {
	configName   string
	chars        int
	maxTokens    int
	voiceSeconds int
	format       string
}

var pricingPreviewCmd = &cobra.Command{
	Use:   "preview",
	Short: "Preview the cost of a prospective message",
	Long: `Price a prospective message against a catalog entry without touching
any wallet or session state.

Examples:
  coinmeter pricing preview --config-name quick_answer_medium
  coinmeter pricing preview --config-name contract_review_strong --chars 10000 --max-tokens 3000`,
	RunE: previewPricing,
}

func init() {
	rootCmd.AddCommand(pricingCmd)
	pricingCmd.AddCommand(pricingListCmd)
	pricingCmd.AddCommand(pricingPreviewCmd)

	pricingListCmd.Flags().StringVar(&pricingListFlags.format, "format", "text", "output format: text, json")

	pricingPreviewCmd.Flags().StringVar(&pricingPreviewFlags.configName, "config-name", "", "pricing config static name (required)")
	pricingPreviewCmd.Flags().IntVar(&pricingPreviewFlags.chars, "chars", 0, "message character count")
	pricingPreviewCmd.Flags().IntVar(&pricingPreviewFlags.maxTokens, "max-tokens", 0, "requested output tokens (hybrid pricing)")
	pricingPreviewCmd.Flags().IntVar(&pricingPreviewFlags.voiceSeconds, "voice-seconds", 0, "voice duration in seconds")
	pricingPreviewCmd.Flags().StringVar(&pricingPreviewFlags.format, "format", "text", "output format: text, json")
	_ = pricingPreviewCmd.MarkFlagRequired("config-name")
}

func loadCatalog() (*config.Config, pricing.Repository, error) {
	cfg, err := config.LoadConfigWithEnvOverrides(cfgFile)
	if err != nil {
		return nil, nil, cli.NewConfigError("", err.Error())
	}
	repo, err := pricing.NewStaticRepository(cfg.PricingConfigs())
	if err != nil {
		return nil, nil, cli.NewConfigError("pricing", err.Error())
	}
	return cfg, repo, nil
}

func listPricing(cmd *cobra.Command, args []string) error {
	_, repo, err := loadCatalog()
	if err != nil {
		return err
	}
	configs := repo.List()

	if pricingListFlags.format == string(cli.FormatJSON) {
		type entry struct {
			StaticName     string `json:"static_name"`
			Name           string `json:"name"`
			ModelName      string `json:"model_name"`
			Strength       string `json:"strength"`
			PricingType    string `json:"pricing_type"`
			Active         bool   `json:"active"`
			CostPerMessage string `json:"cost_per_message,omitempty"`
			BaseCost       string `json:"base_cost,omitempty"`
		}
		out := make([]entry, 0, len(configs))
		for _, c := range configs {
			out = append(out, entry{
				StaticName:     c.StaticName,
				Name:           c.Name,
				ModelName:      c.ModelName,
				Strength:       string(c.Strength),
				PricingType:    string(c.PricingType),
				Active:         c.Active,
				CostPerMessage: c.CostPerMessage.String(),
				BaseCost:       c.BaseCost.String(),
			})
		}
		return cli.NewFormatter(cli.FormatJSON).FormatTo(os.Stdout, out)
	}

	fmt.Printf("Pricing catalog (%d entries):\n\n", len(configs))
	for _, c := range configs {
		state := "active"
		if !c.Active {
			state = "inactive"
		}
		fmt.Printf("  %s (%s, %s, %s)\n", c.StaticName, c.Strength, c.PricingType, state)
		if c.IsMessageBased() {
			fmt.Printf("    cost per message: %s coins\n", c.CostPerMessage)
		} else {
			fmt.Printf("    base: %s coins, %d chars/coin (%d free), tokens %d-%d step %d @ %s coins\n",
				c.BaseCost, c.CharPerCoin, c.FreeChars,
				c.TokensMin, c.TokensMax, c.TokensStep, c.CostPerStep)
		}
	}
	return nil
}

func previewPricing(cmd *cobra.Command, args []string) error {
	_, repo, err := loadCatalog()
	if err != nil {
		return err
	}

	cfg, err := repo.Get(pricingPreviewFlags.configName)
	if err != nil {
		return cli.NewCommandError("pricing preview", err)
	}

	maxTokens := pricingPreviewFlags.maxTokens
	if maxTokens == 0 && cfg.IsAdvancedHybrid() {
		maxTokens = cfg.DefaultMaxTokens
	}

	cb, err := pricing.CompleteCost(cfg, pricingPreviewFlags.chars, maxTokens, nil, pricingPreviewFlags.voiceSeconds)
	if err != nil {
		return cli.NewCommandError("pricing preview", err)
	}

	if pricingPreviewFlags.format == string(cli.FormatJSON) {
		out := map[string]any{
			"config":     cfg.StaticName,
			"total_cost": cb.TotalCost.String(),
		}
		if cb.Text != nil {
			out["base_cost"] = cb.Text.BaseCost.String()
			out["char_cost"] = cb.Text.CharCost.String()
			out["step_cost"] = cb.Text.StepCost.String()
			out["billable_chars"] = cb.Text.BillableChars
		}
		if cb.Voice != nil {
			out["voice_cost"] = cb.Voice.VoiceCost.String()
		}
		return cli.NewFormatter(cli.FormatJSON).FormatTo(os.Stdout, out)
	}

	fmt.Printf("Cost preview for %s:\n", cfg.StaticName)
	if cb.Text != nil {
		if cfg.IsAdvancedHybrid() {
			fmt.Printf("  base cost:      %s coins\n", cb.Text.BaseCost)
			fmt.Printf("  character cost: %s coins (%d billable of %d)\n",
				cb.Text.CharCost, cb.Text.BillableChars, cb.Text.CharacterCount)
			fmt.Printf("  token cost:     %s coins (%d steps)\n", cb.Text.StepCost, cb.Text.NumSteps)
		} else {
			fmt.Printf("  message cost:   %s coins\n", cb.Text.TotalCost)
		}
	}
	if cb.Voice != nil {
		fmt.Printf("  voice cost:     %s coins (%d billable minutes)\n",
			cb.Voice.VoiceCost, cb.Voice.BillableMinutes)
	}
	fmt.Printf("  total:          %s coins\n", cb.TotalCost)
	return nil
}
