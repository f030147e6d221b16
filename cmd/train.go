package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/KaramelBytes/riskloom-cli/internal/artifacts"
	cfgpkg "github.com/KaramelBytes/riskloom-cli/internal/config"
	"github.com/KaramelBytes/riskloom-cli/internal/dataset"
	"github.com/KaramelBytes/riskloom-cli/internal/features"
	"github.com/KaramelBytes/riskloom-cli/internal/model"
	"github.com/spf13/cobra"
)

var (
	trainFile    string
	trainVariant string
	trainWorkers int
	trainList    bool
)

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Train the severity and claim probability models and save them",
	Long: `Prepares the dataset (feature selection, imputation, derived features, label
encoding), trains a claim severity regressor on policies with claims and a claim
probability classifier on all policies, prints held-out metrics and saves the
model bundle to the artifact store (models_dir, or MinIO).`,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := requireConfig()
		if err != nil {
			return err
		}
		tc := model.TrainConfig{
			Trees:           c.ForestTrees,
			Seed:            c.RandomSeed,
			Workers:         trainWorkers,
			BoostingEnabled: c.BoostingEnabled,
		}
		out := cmd.OutOrStdout()
		if trainList {
			fmt.Fprintln(out, strings.Join(model.VariantNames(tc), "\n"))
			return nil
		}
		trainer, err := model.GetVariant(trainVariant, tc)
		if err != nil {
			return err
		}
		t, name, err := loadTable(trainFile)
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		logger.Info("training", slog.String("dataset", name), slog.Int("rows", t.Rows()), slog.String("variant", trainVariant))

		start := time.Now()
		b, err := trainBundle(ctx, trainer, t, c)
		if err != nil {
			return err
		}
		b.Manifest.Variant = trainVariant

		store, err := openStore(ctx, c)
		if err != nil {
			return err
		}
		if err := artifacts.Save(ctx, store, b); err != nil {
			return fmt.Errorf("save models: %w", err)
		}
		logger.Info("training finished", slog.String("run_id", b.Manifest.RunID), slog.Duration("elapsed", time.Since(start)))

		m := b.Manifest
		fmt.Fprintf(out, "Severity model (%s): RMSE %.2f, R2 %.4f\n", m.SeverityKind, m.SeverityMetrics.RMSE, m.SeverityMetrics.R2)
		fmt.Fprintf(out, "Probability model (%s): accuracy %.4f, precision %.4f, recall %.4f, F1 %.4f\n", m.ProbabilityKind,
			m.ClassificationMetrics.Accuracy, m.ClassificationMetrics.Precision, m.ClassificationMetrics.Recall, m.ClassificationMetrics.F1)
		printImportance(cmd, "Top severity drivers", m.SeverityImportance)
		printImportance(cmd, "Top claim drivers", m.ProbabilityImportance)
		fmt.Fprintf(out, "✓ Saved models to %s (run %s)\n", store.Location(), m.RunID)
		return nil
	},
}

// trainBundle runs the preparation pipeline and fits both models.
func trainBundle(ctx context.Context, trainer model.Trainer, t *dataset.Table, c *cfgpkg.Global) (*artifacts.Bundle, error) {
	encoded, enc, err := features.Pipeline(t)
	if err != nil {
		return nil, err
	}
	opt := features.SplitOptions{TestSize: c.TestSize, Seed: c.RandomSeed}
	sevData, err := features.PrepareSeverityData(encoded, opt)
	if err != nil {
		return nil, fmt.Errorf("prepare severity data: %w", err)
	}
	clfData, err := features.PrepareClassificationData(encoded, opt)
	if err != nil {
		return nil, fmt.Errorf("prepare classification data: %w", err)
	}
	logger.Debug("prepared data",
		slog.Int("severity_train", len(sevData.XTrain)), slog.Int("severity_test", len(sevData.XTest)),
		slog.Int("clf_train", len(clfData.XTrain)), slog.Int("clf_test", len(clfData.XTest)))

	sev, err := trainer.FitRegressor(ctx, sevData.XTrain, sevData.YTrain)
	if err != nil {
		return nil, fmt.Errorf("fit severity model: %w", err)
	}
	prob, err := trainer.FitClassifier(ctx, clfData.XTrain, clfData.YTrain)
	if err != nil {
		return nil, fmt.Errorf("fit probability model: %w", err)
	}

	m := artifacts.NewManifest("")
	if m.SeverityMetrics, err = model.EvaluateRegression(sevData.YTest, model.PredictAll(sev, sevData.XTest)); err != nil {
		return nil, err
	}
	if m.ClassificationMetrics, err = model.EvaluateClassification(clfData.YTest, model.ClassifyAll(prob, clfData.XTest)); err != nil {
		return nil, err
	}
	if m.SeverityImportance, err = importance(sev, sevData.Features); err != nil {
		return nil, err
	}
	if m.ProbabilityImportance, err = importance(prob, clfData.Features); err != nil {
		return nil, err
	}
	m.TrainRows = len(clfData.XTrain)
	m.TestRows = len(clfData.XTest)

	return &artifacts.Bundle{
		Severity:              sev,
		Probability:           prob,
		Encoders:              enc,
		SeverityColumns:       sevData.Features,
		ClassificationColumns: clfData.Features,
		Manifest:              m,
	}, nil
}

// importance tolerates models without feature importances.
func importance(m any, names []string) ([]model.Importance, error) {
	imp, err := model.FeatureImportance(m, names)
	if errors.Is(err, model.ErrUnsupportedModel) {
		return nil, nil
	}
	return imp, err
}

func printImportance(cmd *cobra.Command, title string, imp []model.Importance) {
	if len(imp) == 0 {
		return
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s:\n", title)
	for i, v := range imp {
		if i == 5 {
			break
		}
		fmt.Fprintf(out, "  %-28s %.4f\n", v.Feature, v.Importance)
	}
}

// openStore returns the artifact store selected by artifact_backend.
func openStore(ctx context.Context, c *cfgpkg.Global) (artifacts.Store, error) {
	switch c.ArtifactBackend {
	case "", "fs":
		return artifacts.NewFSStore(c.ModelsDir), nil
	case "minio":
		s, err := artifacts.NewMinioStore(ctx, artifacts.MinioConfig{
			Endpoint:  c.MinioEndpoint,
			AccessKey: c.MinioAccessKey,
			SecretKey: c.MinioSecretKey,
			Bucket:    c.MinioBucket,
			Secure:    c.MinioSecure,
		})
		if err != nil {
			return nil, fmt.Errorf("open minio store: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown artifact_backend %q", c.ArtifactBackend)
	}
}

func init() {
	rootCmd.AddCommand(trainCmd)
	trainCmd.Flags().StringVarP(&trainFile, "file", "f", "", "dataset path or name below <data_dir>/raw (default "+dataset.DefaultFilename+")")
	trainCmd.Flags().StringVar(&trainVariant, "variant", model.VariantRandomForest, "model variant: linear|random_forest|boosted (boosted needs boosting_enabled)")
	trainCmd.Flags().IntVar(&trainWorkers, "workers", 0, "parallel tree builders (0 = GOMAXPROCS)")
	trainCmd.Flags().BoolVar(&trainList, "list-variants", false, "list the variants available under the current config")
}
