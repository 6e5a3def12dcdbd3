package wire

import "errors"

// Validator accumulates parse/validation errors found while inspecting a
// frame, instead of returning on the first one. Callers call ResetErr once
// per frame, run the frame's ValidateSize/ValidateExceptCRC methods against
// it, then inspect Err.
type Validator struct {
	checkEvil      bool
	allowMultiErrs bool
	accum          []error
}

// SetCheckEvil toggles whether IPv4 ValidateExceptCRC rejects packets with
// the evil bit (RFC 3514) set.
func (v *Validator) SetCheckEvil(check bool) { v.checkEvil = check }

// CheckEvil reports whether the evil bit is checked. See [Validator.SetCheckEvil].
func (v *Validator) CheckEvil() bool { return v.checkEvil }

// SetAllowMultiErrs toggles whether AddError accumulates every error seen or
// only the first.
func (v *Validator) SetAllowMultiErrs(allow bool) { v.allowMultiErrs = allow }

// ResetErr clears accumulated errors, readying the Validator for reuse on a new frame.
func (v *Validator) ResetErr() {
	v.accum = v.accum[:0]
}

// HasError reports whether any error has been accumulated since the last ResetErr.
func (v *Validator) HasError() bool {
	return len(v.accum) != 0
}

// Err returns the accumulated errors, or nil if none were added.
func (v *Validator) Err() error {
	if len(v.accum) == 1 {
		return v.accum[0]
	} else if len(v.accum) == 0 {
		return nil
	}
	return errors.Join(v.accum...)
}

// AddError records err. If SetAllowMultiErrs(false) (the default) only the
// first error added since the last ResetErr is kept.
func (v *Validator) AddError(err error) {
	if err == nil {
		panic("wire: AddError given nil error")
	} else if len(v.accum) != 0 && !v.allowMultiErrs {
		return
	}
	v.accum = append(v.accum, err)
}
