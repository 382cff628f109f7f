package expr

import "fmt"

// Grouping is an element of GroupBy result.
type Grouping[K, V any] struct {
	Key      K
	Elements []V
}

// BucketResult is an element of Bucket result.
type BucketResult[K any] struct {
	ID    K     `bson:"_id"`
	Count int64 `bson:"count"`
}

// WhenMatched defines Merge behavior for documents that already exist.
type WhenMatched int

const (
	MergeDefault WhenMatched = iota
	MergeReplace
	MergeKeepExisting
	MergeMerge
	MergeFail
)

// String implements fmt.Stringer.
func (w WhenMatched) String() string {
	switch w {
	case MergeDefault:
		return "default"
	case MergeReplace:
		return "replace"
	case MergeKeepExisting:
		return "keepExisting"
	case MergeMerge:
		return "merge"
	case MergeFail:
		return "fail"
	default:
		return fmt.Sprintf("WhenMatched(%d)", int(w))
	}
}

// WhenNotMatched defines Merge behavior for new documents.
type WhenNotMatched int

const (
	InsertDefault WhenNotMatched = iota
	InsertNew
	InsertDiscard
	InsertFail
)

// String implements fmt.Stringer.
func (w WhenNotMatched) String() string {
	switch w {
	case InsertDefault:
		return "default"
	case InsertNew:
		return "insert"
	case InsertDiscard:
		return "discard"
	case InsertFail:
		return "fail"
	default:
		return fmt.Sprintf("WhenNotMatched(%d)", int(w))
	}
}

// MergeOptions is an optional argument of Merge.
type MergeOptions struct {
	// On lists Go field names identifying documents.
	On             []string
	WhenMatched    WhenMatched
	WhenNotMatched WhenNotMatched
}
