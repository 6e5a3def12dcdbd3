package wire

import "testing"

func TestCRC791WriteMatchesPayloadSum16(t *testing.T) {
	data := []byte{0x45, 0x00, 0x00, 0x3c, 0x1c, 0x46, 0x40, 0x00, 0x40, 0x06}
	var whole CRC791
	want := whole.PayloadSum16(data)

	var piecewise CRC791
	piecewise.Write(data[:3])
	piecewise.Write(data[3:7])
	piecewise.Write(data[7:])
	if got := piecewise.Sum16(); got != want {
		t.Fatalf("piecewise odd-split Write got %#x want %#x", got, want)
	}
}

func TestCRC791WriteEmptyOddTail(t *testing.T) {
	var c CRC791
	c.Write([]byte{0x12})
	c.Write(nil)
	if got := c.Sum16(); got != checksum16(0x1200) {
		t.Fatalf("got %#x want %#x", got, checksum16(0x1200))
	}
}

func TestNeverZeroChecksum(t *testing.T) {
	if got := NeverZeroChecksum(0); got != 0xffff {
		t.Fatalf("got %#x want 0xffff", got)
	}
	if got := NeverZeroChecksum(0x1234); got != 0x1234 {
		t.Fatalf("got %#x want 0x1234", got)
	}
}

func TestValidatorAccumulation(t *testing.T) {
	var v Validator
	v.SetAllowMultiErrs(true)
	v.ResetErr()
	if v.HasError() {
		t.Fatal("freshly reset validator should have no error")
	}
	v.AddError(errTest("first"))
	v.AddError(errTest("second"))
	if !v.HasError() {
		t.Fatal("expected accumulated error")
	}
	if v.Err() == nil {
		t.Fatal("expected non-nil joined error")
	}
}

func TestValidatorSingleErrMode(t *testing.T) {
	var v Validator
	v.AddError(errTest("first"))
	v.AddError(errTest("second"))
	if v.Err().Error() != "first" {
		t.Fatalf("got %q want %q (only first error kept by default)", v.Err(), "first")
	}
}

type errTest string

func (e errTest) Error() string { return string(e) }
