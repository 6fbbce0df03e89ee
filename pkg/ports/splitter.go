package ports

import "context"

// Dataset is an opaque handle on data flowing through the external
// pipeline engine. The core never inspects it.
type Dataset any

// SplitPair is one train/validation partition. Validation may be nil, in
// which case evaluation records train values only.
type SplitPair struct {
	Train      Dataset
	Validation Dataset
}

// Splitter produces the train/validation partitions a trial runs over.
type Splitter interface {
	Split(ctx context.Context, data Dataset) ([]SplitPair, error)
}
