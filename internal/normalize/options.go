package normalize

// Options is the bitset of normalization behaviors. Search words and
// indexed tokens MUST be normalized with the same Options or matches
// silently diverge.
type Options uint8

const (
	// Lowercase folds ASCII, Latin-1, Latin Extended-A, Greek capitals,
	// and Cyrillic capitals to their lowercase counterparts.
	Lowercase Options = 1 << iota
	// NoAccent folds Latin-1 and Latin Extended-A accented letters to
	// their unaccented ASCII base letter.
	NoAccent
	// SpaceSquash collapses runs of spaces to one and trims the ends.
	SpaceSquash
)

func (o Options) has(bit Options) bool { return o&bit != 0 }
