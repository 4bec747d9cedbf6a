package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/alanyoungcy/tradepilot/internal/autopilot"
	"github.com/alanyoungcy/tradepilot/internal/crypto"
	"github.com/alanyoungcy/tradepilot/internal/domain"
)

// options are the persistent flags shared by every subcommand.
type options struct {
	url     string
	apiKey  string
	timeout time.Duration
	json    bool
}

func (o *options) client() *Client {
	return NewClient(strings.TrimRight(o.url, "/"), o.apiKey, o.timeout)
}

// NewRootCmd creates the pilotctl root command.
func NewRootCmd() *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:   "pilotctl",
		Short: "Operate a running tradepilot engine",
		Long: `pilotctl talks to the tradepilot HTTP API to inspect the engine, resolve
pending decisions, flip the control switches and feed risk-state updates.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&opts.url, "url", envOr("TRADEPILOT_URL", "http://localhost:8000"), "tradepilot server base URL")
	rootCmd.PersistentFlags().StringVar(&opts.apiKey, "api-key", os.Getenv("TRADEPILOT_API_KEY"), "API key (defaults to $TRADEPILOT_API_KEY)")
	rootCmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", 10*time.Second, "request timeout")
	rootCmd.PersistentFlags().BoolVar(&opts.json, "json", false, "print raw JSON")

	rootCmd.AddCommand(
		newStatusCmd(opts),
		newPendingCmd(opts),
		newHistoryCmd(opts),
		newShowCmd(opts),
		newEvaluateCmd(opts),
		newApproveCmd(opts),
		newRejectCmd(opts),
		newKillCmd(opts),
		newSwitchCmd(opts, "pause", "Pause evaluation"),
		newSwitchCmd(opts, "resume", "Resume evaluation after a pause"),
		newSwitchCmd(opts, "reset", "Clear the kill and pause flags"),
		newModeCmd(opts),
		newRiskCmd(opts),
		newHashKeyCmd(),
	)
	return rootCmd
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func newStatusCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show engine mode, switches, risk state and decision counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := opts.client().Status(cmd.Context())
			if err != nil {
				return err
			}
			return printStatus(cmd.OutOrStdout(), opts, st)
		},
	}
}

func newPendingCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "pending",
		Short: "List decisions awaiting approval",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ds, err := opts.client().Pending(cmd.Context())
			if err != nil {
				return err
			}
			return printDecisions(cmd.OutOrStdout(), opts, ds)
		},
	}
}

func newHistoryCmd(opts *options) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent decisions, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ds, err := opts.client().History(cmd.Context(), limit)
			if err != nil {
				return err
			}
			return printDecisions(cmd.OutOrStdout(), opts, ds)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum decisions to show")
	return cmd
}

func newShowCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "show DECISION_ID",
		Short: "Show one decision in full",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := opts.client().Decision(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), d)
		},
	}
}

func newEvaluateCmd(opts *options) *cobra.Command {
	var (
		opp      domain.Opportunity
		side     string
		kind     string
		stopLoss float64
		takeProf float64
		trend    string
		signal   string
		rsi      float64
		volume   bool
	)
	cmd := &cobra.Command{
		Use:   "evaluate SYMBOL AMOUNT",
		Short: "Submit an opportunity for evaluation",
		Example: `  pilotctl evaluate BTC/USDT 50 --side buy --stop-loss 0.05 --take-profit 0.10 \
    --trend bullish --signal buy --rsi 28 --volume`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := fmt.Sscanf(args[1], "%g", &opp.Amount); err != nil {
				return fmt.Errorf("invalid amount %q: %w", args[1], err)
			}
			opp.Symbol = args[0]
			opp.Side = domain.Side(side)
			opp.Kind = domain.DecisionKind(kind)
			if opp.Action == "" {
				opp.Action = side
			}
			if cmd.Flags().Changed("stop-loss") {
				opp.StopLoss = &stopLoss
			}
			if cmd.Flags().Changed("take-profit") {
				opp.TakeProfit = &takeProf
			}
			analysis := domain.Analysis{
				Trend:           domain.Trend(trend),
				Signal:          domain.SignalDirection(signal),
				VolumeConfirmed: volume,
			}
			if cmd.Flags().Changed("rsi") {
				analysis.RSI = &rsi
			}

			d, err := opts.client().Evaluate(cmd.Context(), opp, analysis)
			if err != nil {
				return err
			}
			return printDecision(cmd.OutOrStdout(), opts, d)
		},
	}
	cmd.Flags().StringVar(&opp.Action, "action", "", "action label (defaults to the side)")
	cmd.Flags().StringVar(&side, "side", "buy", "buy or sell")
	cmd.Flags().StringVar(&kind, "kind", "", "decision kind (trade, rebalance, alert, report)")
	cmd.Flags().Float64Var(&stopLoss, "stop-loss", 0, "stop-loss fraction, e.g. 0.05")
	cmd.Flags().Float64Var(&takeProf, "take-profit", 0, "take-profit fraction, e.g. 0.10")
	cmd.Flags().StringVar(&trend, "trend", "", "bullish, bearish or neutral")
	cmd.Flags().StringVar(&signal, "signal", "", "buy, sell or hold")
	cmd.Flags().Float64Var(&rsi, "rsi", 0, "RSI reading")
	cmd.Flags().BoolVar(&volume, "volume", false, "volume confirms the move")
	return cmd
}

func newApproveCmd(opts *options) *cobra.Command {
	var approver string
	cmd := &cobra.Command{
		Use:   "approve DECISION_ID",
		Short: "Approve a pending decision",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := opts.client().Approve(cmd.Context(), args[0], approver)
			if err != nil {
				return err
			}
			return printDecision(cmd.OutOrStdout(), opts, d)
		},
	}
	cmd.Flags().StringVar(&approver, "as", envOr("USER", "pilotctl"), "name recorded as approver")
	return cmd
}

func newRejectCmd(opts *options) *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "reject DECISION_ID",
		Short: "Reject a pending decision",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := opts.client().Reject(cmd.Context(), args[0], reason)
			if err != nil {
				return err
			}
			return printDecision(cmd.OutOrStdout(), opts, d)
		},
	}
	cmd.Flags().StringVarP(&reason, "reason", "r", "rejected via pilotctl", "rejection reason")
	return cmd
}

func newKillCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "kill [REASON...]",
		Short: "Stop all evaluation until reset",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := opts.client().Kill(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			return printStatus(cmd.OutOrStdout(), opts, st)
		},
	}
}

func newSwitchCmd(opts *options, action, short string) *cobra.Command {
	return &cobra.Command{
		Use:   action,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := opts.client().Control(cmd.Context(), action)
			if err != nil {
				return err
			}
			return printStatus(cmd.OutOrStdout(), opts, st)
		},
	}
}

func newModeCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:       "mode MODE",
		Short:     "Switch autonomy mode (manual, semi-auto, full-auto)",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{string(domain.ModeManual), string(domain.ModeSemiAuto), string(domain.ModeFullAuto)},
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := domain.ParseMode(args[0]); err != nil {
				return err
			}
			st, err := opts.client().SetMode(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printStatus(cmd.OutOrStdout(), opts, st)
		},
	}
}

func newRiskCmd(opts *options) *cobra.Command {
	var (
		dailyPnL        float64
		dailyPnLPercent float64
		drawdown        float64
		openPositions   int
		exposure        float64
		tradedNow       bool
	)
	cmd := &cobra.Command{
		Use:   "risk",
		Short: "Show the risk state, or update it when any flag is given",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var patch domain.RiskStatePatch
			flags := cmd.Flags()
			if flags.Changed("daily-pnl") {
				patch.DailyPnL = &dailyPnL
			}
			if flags.Changed("daily-pnl-percent") {
				patch.DailyPnLPercent = &dailyPnLPercent
			}
			if flags.Changed("drawdown") {
				patch.CurrentDrawdown = &drawdown
			}
			if flags.Changed("open-positions") {
				patch.OpenPositions = &openPositions
			}
			if flags.Changed("exposure") {
				patch.TotalExposure = &exposure
			}
			if tradedNow {
				now := time.Now().UTC()
				patch.LastTradeTime = &now
			}

			c := opts.client()
			var (
				rs  domain.RiskState
				err error
			)
			if patch.IsEmpty() {
				rs, err = c.Risk(cmd.Context())
			} else {
				rs, err = c.UpdateRisk(cmd.Context(), patch)
			}
			if err != nil {
				return err
			}
			if opts.json {
				return printJSON(cmd.OutOrStdout(), rs)
			}
			printRisk(cmd.OutOrStdout(), rs)
			return nil
		},
	}
	cmd.Flags().Float64Var(&dailyPnL, "daily-pnl", 0, "daily P&L in account currency")
	cmd.Flags().Float64Var(&dailyPnLPercent, "daily-pnl-percent", 0, "daily P&L percent (negative is a loss)")
	cmd.Flags().Float64Var(&drawdown, "drawdown", 0, "current drawdown percent")
	cmd.Flags().IntVar(&openPositions, "open-positions", 0, "open position count")
	cmd.Flags().Float64Var(&exposure, "exposure", 0, "total exposure")
	cmd.Flags().BoolVar(&tradedNow, "traded-now", false, "set last trade time to now")
	return cmd
}

func newHashKeyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-key KEY",
		Short: "Print the bcrypt hash to put in server.api_key_hash",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := crypto.HashAPIKey(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), h)
			return nil
		},
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printStatus(w io.Writer, opts *options, st autopilot.Status) error {
	if opts.json {
		return printJSON(w, st)
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "mode\t%s\n", st.Mode)
	killed := fmt.Sprint(st.Killed)
	if st.Killed && st.KillReason != "" {
		killed += " (" + st.KillReason + ")"
	}
	fmt.Fprintf(tw, "killed\t%s\n", killed)
	fmt.Fprintf(tw, "paused\t%t\n", st.Paused)
	fmt.Fprintf(tw, "pending\t%d\n", st.PendingCount)
	fmt.Fprintf(tw, "decisions\t%d\n", st.TotalDecisions)
	fmt.Fprintf(tw, "daily pnl\t%.2f%%\n", st.Risk.DailyPnLPercent)
	fmt.Fprintf(tw, "drawdown\t%.2f%%\n", st.Risk.CurrentDrawdown)
	fmt.Fprintf(tw, "exposure\t%.2f\n", st.Risk.TotalExposure)
	fmt.Fprintf(tw, "uptime\t%s\n", time.Duration(st.UptimeSeconds)*time.Second)
	return tw.Flush()
}

func printDecision(w io.Writer, opts *options, d domain.Decision) error {
	return printDecisions(w, opts, []domain.Decision{d})
}

func printDecisions(w io.Writer, opts *options, ds []domain.Decision) error {
	if opts.json {
		return printJSON(w, ds)
	}
	if len(ds) == 0 {
		fmt.Fprintln(w, "no decisions")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATUS\tACTION\tSYMBOL\tAMOUNT\tCONF\tRISK\tNOTE")
	for _, d := range ds {
		note := d.RejectionReason
		if note == "" {
			note = d.Error
		}
		if note == "" && d.ApprovalDeadline != nil && d.Status == domain.DecisionStatusPending {
			note = "expires " + d.ApprovalDeadline.Local().Format(time.Kitchen)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%g\t%.2f\t%s\t%s\n",
			d.ID, d.Status, d.Action, d.Params.Symbol, d.Params.Amount, d.Confidence, d.Risk.Level, note)
	}
	return tw.Flush()
}

func printRisk(w io.Writer, rs domain.RiskState) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "daily pnl\t%.2f\n", rs.DailyPnL)
	fmt.Fprintf(tw, "daily pnl %%\t%.2f\n", rs.DailyPnLPercent)
	fmt.Fprintf(tw, "drawdown %%\t%.2f\n", rs.CurrentDrawdown)
	fmt.Fprintf(tw, "open positions\t%d\n", rs.OpenPositions)
	fmt.Fprintf(tw, "exposure\t%.2f\n", rs.TotalExposure)
	if rs.LastTradeTime != nil {
		fmt.Fprintf(tw, "last trade\t%s\n", rs.LastTradeTime.Format(time.RFC3339))
	}
	tw.Flush()
}
