package realty

// Schema paths of a registry extract about one premises
const (
	pathFlat          = "KPOKS.Realty.Flat"
	pathRights        = "KPOKS.ReestrExtract.ExtractObjectRight.ExtractObject.ObjectRight.Right"
	pathRequeryNumber = "KPOKS.ReestrExtract.DeclarAttribute.-RequeryNumber"
)

// Document is an extract whose rights and owners are always sequences.
// The IsSequence flags keep the cardinality found in the source.
type Document struct {
	Flat             Value
	Rights           []Right
	RightsIsSequence bool
	RequeryNumber    Value
}

// Right is one registered right with its owners
type Right struct {
	Value
	Owners           []Value
	OwnersIsSequence bool
}

// Normalize locates the schema parts of an extract
func Normalize(tree Tree) (*Document, error) {
	flat := tree.Get(pathFlat, "")
	if !flat.Found {
		return nil, &ExtractionError{Err: errRealtyObjectMissing}
	}

	rights := tree.Get(pathRights, "")
	doc := &Document{
		Flat:             flat,
		RightsIsSequence: rights.IsSeq(),
		RequeryNumber:    tree.Get(pathRequeryNumber, ""),
	}

	for _, right := range rights.Seq() {
		owners := right.Get("Owner", "")
		doc.Rights = append(doc.Rights, Right{
			Value:            right,
			Owners:           owners.Seq(),
			OwnersIsSequence: owners.IsSeq(),
		})
	}

	return doc, nil
}
