// Package evidential trains open-domain question-answering models with
// evidence self-training: high-confidence model predictions are promoted into
// persistent pseudo-labels ("evidence") that seed the next training round.
//
// The neural reader/selector itself is an external service; this module owns
// everything around it: ground-truth span matching and its per-round cache,
// document subsampling, the evidence label store, the globally-ranked
// promotion of confident predictions, cross-document answer aggregation, and
// the training loop that ties them together.
//
// # Basic Usage
//
// Build a Runner from configuration and execute one self-training round:
//
//	cfg, err := config.Load()
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	runner, err := evidential.NewRunner(cfg, evidential.Options{
//		LoadEvidenceID: "round1",
//		SaveEvidenceID: "round2",
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//	if err := runner.Run(ctx); err != nil {
//		log.Fatal(err)
//	}
//
// Each round trains for the configured number of epochs, keeps the best
// dev-metric model, then runs the evidence update and persists the label file
// named by SaveEvidenceID for the next round to load.
package evidential
