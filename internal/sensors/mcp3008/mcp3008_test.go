package mcp3008

import (
	"errors"
	"testing"
)

type fakeXfer struct {
	// Reply per channel, as the chip would clock it out.
	replies map[int][3]byte
	writes  [][]byte
	err     error
}

func (f *fakeXfer) Tx(w, r []byte) error {
	f.writes = append(f.writes, append([]byte(nil), w...))
	if f.err != nil {
		return f.err
	}
	ch := int(w[1]>>4) - 8
	reply := f.replies[ch]
	copy(r, reply[:])
	return nil
}

func TestRead_CommandAndDecode(t *testing.T) {
	fx := &fakeXfer{replies: map[int][3]byte{
		0: {0xFF, 0xFE, 0x34}, // garbage in the high bits must be masked
		5: {0x00, 0x00, 0x00},
	}}
	d, err := newWithXfer(fx)
	if err != nil {
		t.Fatalf("newWithXfer() error: %v", err)
	}

	v, err := d.Read(0)
	if err != nil {
		t.Fatalf("Read(0) error: %v", err)
	}
	if v != 0x234 {
		t.Fatalf("Read(0)=0x%X want 0x234", v)
	}

	if _, err := d.Read(5); err != nil {
		t.Fatalf("Read(5) error: %v", err)
	}
	want := []byte{0x01, 0xD0, 0x00}
	got := fx.writes[1]
	if string(got) != string(want) {
		t.Fatalf("command=% X want % X", got, want)
	}
}

func TestNormalized_FullScale(t *testing.T) {
	fx := &fakeXfer{replies: map[int][3]byte{2: {0x00, 0x03, 0xFF}}}
	d, _ := newWithXfer(fx)

	v, err := d.Normalized(2)
	if err != nil {
		t.Fatalf("Normalized() error: %v", err)
	}
	if v != 1.0 {
		t.Fatalf("Normalized()=%v want 1", v)
	}
}

func TestRead_ChannelRange(t *testing.T) {
	d, _ := newWithXfer(&fakeXfer{})
	for _, ch := range []int{-1, 8} {
		if _, err := d.Read(ch); err == nil {
			t.Fatalf("Read(%d) expected error", ch)
		}
	}
}

func TestRead_PropagatesTxError(t *testing.T) {
	txErr := errors.New("bus fault")
	d, _ := newWithXfer(&fakeXfer{err: txErr})
	if _, err := d.Read(1); !errors.Is(err, txErr) {
		t.Fatalf("err=%v want %v", err, txErr)
	}
}

func TestNew_NilDev(t *testing.T) {
	if _, err := New(nil); err == nil {
		t.Fatalf("expected error")
	}
}
