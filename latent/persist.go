package latent

import (
	"fmt"
	"path/filepath"

	"github.com/happyhackingspace/latentcrf/crf"
	"github.com/happyhackingspace/latentcrf/internal/cluster"
	"github.com/happyhackingspace/latentcrf/internal/corpus"
)

const (
	suffixFinal       = "final"
	suffixInterrupted = "interrupted"
)

func (w *worker) path(name string) string {
	return w.cfg.OutputPrefix + "." + name
}

func (w *worker) persistDue(iter int) bool {
	return w.comm.IsRoot() && w.cfg.OutputPrefix != "" && iter%w.cfg.PersistEvery == 0
}

func (w *worker) persistTheta(iter int) error {
	if !w.persistDue(iter) {
		return nil
	}
	return w.saveTheta(w.path(fmt.Sprintf("%d.theta", iter)))
}

func (w *worker) persistLambda(iter int) error {
	if !w.persistDue(iter) {
		return nil
	}
	return w.saveLambda(w.path(fmt.Sprintf("%d.lambda", iter)))
}

func (w *worker) saveTheta(path string) error {
	if err := w.table.Save(path); err != nil {
		return fmt.Errorf("saving emissions: %w", err)
	}
	w.log.Debug("Saved emissions", "path", filepath.Base(path))
	return nil
}

func (w *worker) saveLambda(path string) error {
	if err := crf.SaveWeights(w.weights, path, false); err != nil {
		return fmt.Errorf("saving weights: %w", err)
	}
	if err := crf.SaveWeights(w.weights, path+".humane", true); err != nil {
		return fmt.Errorf("saving weights: %w", err)
	}
	w.log.Debug("Saved weights", "path", filepath.Base(path))
	return nil
}

// persistAll writes the emissions, weights and labels with a final or
// interrupted suffix. Labeling is collective, so every rank must call it.
func (w *worker) persistAll(kind string) error {
	theta, lambda, labels := kind+".theta", kind+".lambda", "labels"
	if kind == suffixInterrupted {
		theta, lambda, labels = kind+"-theta", kind+"-lambda", kind+"-labels"
	}
	if w.comm.IsRoot() && w.cfg.OutputPrefix != "" {
		if err := w.saveTheta(w.path(theta)); err != nil {
			return err
		}
		if err := w.saveLambda(w.path(lambda)); err != nil {
			return err
		}
	}
	return w.writeLabels(labels)
}

// writeLabels labels the whole corpus across the pool and writes one line
// per sentence, in sentence order. Root also keeps the lines on the
// Trainer.
func (w *worker) writeLabels(name string) error {
	local := make(map[int]string, len(w.mine))
	for _, id := range w.mine {
		labels, err := w.decode(id)
		if err != nil {
			return fmt.Errorf("labeling sentence %d: %w", id, err)
		}
		local[id] = w.task.FormatLabels(id, labels)
	}
	parts, err := cluster.Gather(w.comm, 0, local)
	if err != nil || !w.comm.IsRoot() {
		return err
	}
	lines := make([]string, w.task.Len())
	for _, part := range parts {
		for id, line := range part {
			lines[id] = line
		}
	}
	w.t.Labels = lines
	if w.cfg.OutputPrefix == "" {
		return nil
	}
	path := w.path(name)
	if err := corpus.WriteLines(path, lines); err != nil {
		return fmt.Errorf("writing labels: %w", err)
	}
	w.log.Info("Wrote labels", "path", path, "sentences", len(lines))
	return nil
}

// decode returns the Viterbi labeling of sentence id under the joint
// model, or under the feature model alone when TestWithCRFOnly is set.
// Sentences over MaxSequenceLength get no labels. Sentences whose joint
// lattice has zero-probability emissions are decoded by the feature model.
func (w *worker) decode(id int) ([]int, error) {
	if w.skip(id) {
		return nil, nil
	}
	x := w.task.Observation(id)
	domain := w.task.LabelDomain(id)
	crfOnly := w.cfg.TestWithCRFOnly
	if !crfOnly {
		ok, err := w.scorable(id)
		if err != nil {
			return nil, err
		}
		if !ok {
			w.log.Debug("Decoding with feature weights only", "sentence", id)
			crfOnly = true
		}
	}
	var l *crf.Lattice
	var err error
	if crfOnly {
		l, err = w.builder.FeatureLattice(id, len(x), domain)
	} else {
		l, err = w.builder.JointLattice(id, len(x), domain, w.emitter(id))
	}
	if err != nil {
		return nil, err
	}
	labels, _ := crf.Viterbi(l)
	return labels, nil
}
