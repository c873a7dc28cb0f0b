package disc

// ParanoiaOptions tunes the libcdparanoia driver.
type ParanoiaOptions struct {
	// Mode is "full" for all verification and repair features or
	// "disable" for plain reads.
	Mode string
	// MaxRetries bounds repeated reads of a failing sector.
	MaxRetries int
}

// DefaultParanoiaOptions enables full error correction.
func DefaultParanoiaOptions() ParanoiaOptions {
	return ParanoiaOptions{Mode: "full", MaxRetries: 20}
}

// NewParanoiaDrive returns the native drive implementation. Without the
// cdparanoia build tag its Open always fails.
func NewParanoiaDrive(opts ParanoiaOptions) *ParanoiaDrive {
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = DefaultParanoiaOptions().MaxRetries
	}
	return &ParanoiaDrive{opts: opts}
}

var _ Drive = (*ParanoiaDrive)(nil)
