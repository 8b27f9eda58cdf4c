package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/saveplus/saveplus/internal/anomaly"
	"github.com/saveplus/saveplus/internal/banksync"
	bq "github.com/saveplus/saveplus/internal/bigquery"
	"github.com/saveplus/saveplus/internal/gcs"
	"github.com/saveplus/saveplus/internal/gcsuploader"
	"github.com/saveplus/saveplus/internal/pipeline"
	"github.com/saveplus/saveplus/internal/voice"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

func newDetectCmd(c *cliContext) *cobra.Command {
	return &cobra.Command{
		Use:   "detect",
		Short: "Re-run subscription detection for a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.requireUser(); err != nil {
				return err
			}
			ctx, cancel := c.context(cmd)
			defer cancel()

			store, err := c.openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			deps := pipeline.NewDeps(store, nil)
			deps.Detector = c.cfg.DetectorOptions()
			deps.LookbackMonths = c.cfg.Detector.LookbackMonths

			res, err := pipeline.RunDetection(ctx, deps, c.userID, time.Now())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, res.Summary())
			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "MERCHANT\tFREQUENCY\tAMOUNT\tCONFIDENCE\tNEXT")
			for _, cand := range res.Candidates {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%.2f\t%s\n",
					cand.Merchant, cand.Frequency, cand.AverageAmount().StringFixed(2),
					cand.Confidence, cand.NextExpectedDate.Format("2006-01-02"))
			}
			return tw.Flush()
		},
	}
}

func newScoreCmd(c *cliContext) *cobra.Command {
	return &cobra.Command{
		Use:   "score",
		Short: "Score a user's confirmed subscriptions for zombies",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.requireUser(); err != nil {
				return err
			}
			ctx, cancel := c.context(cmd)
			defer cancel()

			store, err := c.openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			res, err := pipeline.RunZombieScoring(ctx, pipeline.NewDeps(store, nil), c.userID, time.Now())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, res.Summary())
			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "SUBSCRIPTION\tSCORE\tFLAGGED\tNEW")
			for _, d := range res.Decisions {
				fmt.Fprintf(tw, "%s\t%.1f\t%t\t%t\n", d.SubscriptionID, d.Score, d.Flag.IsFlagged(), d.Transitioned)
			}
			return tw.Flush()
		},
	}
}

func newInspectCmd(c *cliContext) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect",
		Short: "Show a user's stored subscriptions and nudges",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.requireUser(); err != nil {
				return err
			}
			ctx, cancel := c.context(cmd)
			defer cancel()

			store, err := c.openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			rows, err := store.ListSubscriptions(ctx, c.userID)
			if err != nil {
				return err
			}
			subs, err := bq.SubscriptionsToDomain(rows)
			if err != nil {
				return err
			}
			nudges, err := store.ListNudges(ctx, c.userID)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "\n=== Subscriptions (%d) ===\n", len(subs))
			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tMERCHANT\tSTATUS\tMONTHLY\tZOMBIE")
			for _, s := range subs {
				score := "-"
				if s.ZombieScore != nil {
					score = fmt.Sprintf("%.1f", *s.ZombieScore)
				}
				if s.Zombie.IsFlagged() {
					score += " (flagged)"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", s.SubscriptionID, s.Merchant, s.Status, s.MonthlyAmount().StringFixed(2), score)
			}
			if err := tw.Flush(); err != nil {
				return err
			}

			fmt.Fprintf(out, "\n=== Nudges (%d) ===\n", len(nudges))
			for i, n := range nudges {
				fmt.Fprintf(out, "\n%d. %s\n", i+1, n.Title)
				fmt.Fprintf(out, "   %s\n", n.Body)
				fmt.Fprintf(out, "   Created: %s\n", n.CreatedTS.Format(time.RFC3339))
			}
			fmt.Fprintln(out)
			return nil
		},
	}
}

func newVoiceCmd(c *cliContext) *cobra.Command {
	var save bool
	cmd := &cobra.Command{
		Use:   "voice <text>",
		Short: "Parse a spoken transaction",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			now := time.Now()
			draft, err := voice.NewParser().Parse(strings.Join(args, " "), now)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Amount:     %s (%s)\n", decimal.New(draft.AmountCents, -2).StringFixed(2), draft.Direction)
			fmt.Fprintf(out, "Merchant:   %s\n", draft.Merchant)
			fmt.Fprintf(out, "Category:   %s\n", draft.Category)
			fmt.Fprintf(out, "Date:       %s\n", draft.Date.Format("2006-01-02"))
			fmt.Fprintf(out, "Confidence: %.1f\n", draft.Confidence)

			if !save {
				return nil
			}
			if err := c.requireUser(); err != nil {
				return err
			}
			if draft.Merchant == "" {
				return fmt.Errorf("no merchant in %q, not saving", draft.Text)
			}

			ctx, cancel := c.context(cmd)
			defer cancel()
			store, err := c.openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			tx := draft.Transaction(uuid.NewString(), c.userID)
			if err := store.InsertTransactions(ctx, []*bq.TransactionRow{bq.NewTransactionRow(tx, "USD", voice.Source, now.UTC())}); err != nil {
				return err
			}
			fmt.Fprintf(out, "Saved transaction %s\n", tx.ID)
			return nil
		},
	}
	cmd.Flags().BoolVar(&save, "save", false, "Store the parsed transaction")
	return cmd
}

func newAnomaliesCmd(c *cliContext) *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:   "anomalies",
		Short: "List unusual and duplicate charges",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.requireUser(); err != nil {
				return err
			}
			if days <= 0 {
				days = c.cfg.Anomaly.LookbackDays
			}
			ctx, cancel := c.context(cmd)
			defer cancel()

			store, err := c.openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			now := time.Now().UTC()
			rows, err := store.QueryUserTransactions(ctx, c.userID, now.AddDate(0, 0, -days), now)
			if err != nil {
				return err
			}
			found := anomaly.Detect(bq.TransactionsToDomain(rows), c.cfg.AnomalyOptions())

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%d anomaly(ies) in the last %d days\n", len(found), days)
			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "DATE\tKIND\tSEVERITY\tDESCRIPTION")
			for _, a := range found {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", a.Date.Format("2006-01-02"), a.Kind, a.Severity, a.Description)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVar(&days, "days", 0, "Lookback in days (default from config)")
	return cmd
}

func newIngestCmd(c *cliContext) *cobra.Command {
	var gcsURI, file string
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Ingest a bank-sync export from GCS or a local file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.requireUser(); err != nil {
				return err
			}
			if (gcsURI == "") == (file == "") {
				return fmt.Errorf("exactly one of --gcs-uri or --file is required")
			}
			ctx, cancel := c.context(cmd)
			defer cancel()

			store, err := c.openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			var res *banksync.IngestResult
			if file != "" {
				data, err := os.ReadFile(file)
				if err != nil {
					return err
				}
				res, err = banksync.Ingest(ctx, store, data, c.userID, time.Now().UTC())
				if err != nil {
					return err
				}
			} else {
				svc, err := gcsuploader.NewService(ctx)
				if err != nil {
					return err
				}
				defer svc.Close()
				res, err = banksync.IngestFromGCS(ctx, svc, store, gcsURI, c.userID, time.Now().UTC())
				if err != nil {
					return err
				}
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Inserted %d, skipped %d, pending %d\n", res.Inserted, res.Skipped, res.Pending)
			return nil
		},
	}
	cmd.Flags().StringVar(&gcsURI, "gcs-uri", "", "GCS URI of an export or a prefix ending in /")
	cmd.Flags().StringVar(&file, "file", "", "Path to a local export")
	return cmd
}

func newUploadCmd(c *cliContext) *cobra.Command {
	var file, bucket string
	cmd := &cobra.Command{
		Use:   "upload",
		Short: "Upload a bank-sync export to GCS",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.requireUser(); err != nil {
				return err
			}
			if bucket == "" {
				bucket = c.cfg.Storage.Bucket
			}
			if file == "" || bucket == "" {
				return fmt.Errorf("--file and a bucket (--bucket or config) are required")
			}
			ctx, cancel := c.context(cmd)
			defer cancel()

			svc, err := gcsuploader.NewService(ctx)
			if err != nil {
				return err
			}
			defer svc.Close()

			object := gcsuploader.ExportObjectName(c.userID, filepath.Base(file), time.Now())
			if err := svc.UploadFile(ctx, bucket, object, file); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Uploaded %s to %s\n", file, gcs.URI(bucket, object))
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "Path to the local export")
	cmd.Flags().StringVar(&bucket, "bucket", "", "GCS bucket (default from config)")
	return cmd
}
