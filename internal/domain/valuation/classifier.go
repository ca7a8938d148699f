package valuation

import "stockledger/internal/core/entity"

// Class is the reconciliation view(s) a movement belongs to.
// A movement may belong to neither.
type Class struct {
	Fiscal   bool
	Physical bool
}

// Classifier assigns movements to the fiscal and physical views.
// Resets always belong to the physical view.
type Classifier interface {
	Classify(m *entity.Movement) (Class, error)
}

// SourceClassifier is the default rule: invoice-sourced movements are fiscal,
// manual ones are physical, production output belongs to neither.
type SourceClassifier struct{}

// Classify implements Classifier.
func (SourceClassifier) Classify(m *entity.Movement) (Class, error) {
	switch m.Source {
	case entity.SourceInvoice:
		return Class{Fiscal: true}, nil
	case entity.SourceManual:
		return Class{Physical: true}, nil
	}
	return Class{}, nil
}
