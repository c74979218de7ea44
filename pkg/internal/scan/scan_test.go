package scan

import (
	"bytes"
	"context"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// peStub 构造带 DOS 头与 PE 头的最小可执行片段.
func peStub() []byte {
	b := make([]byte, 0x80+8)
	copy(b, "MZ")
	binary.LittleEndian.PutUint32(b[peHeaderOffset:], 0x80)
	copy(b[0x80:], "PE\x00\x00")

	return b
}

func TestDangerousExtensionSkipsContent(t *testing.T) {
	s := New()

	for _, name := range []string{"virus.exe", "RUN.BAT", "a.cmd", "screen.Scr"} {
		v := s.Scan(nil, name)
		assert.Equal(t, StatusInfected, v.Status, name)
		assert.Equal(t, ClassDangerous, v.Class, name)
	}
}

func TestSafeContainerClean(t *testing.T) {
	s := New()
	pngish := append([]byte("\x89PNG\r\n\x1a\n"), bytes.Repeat([]byte{0x10, 0x20}, 512)...)

	v := s.Scan(pngish, "photo.PNG")
	assert.Equal(t, StatusClean, v.Status)
	assert.Equal(t, ClassSafe, v.Class)
}

func TestMZMarkerAnywhereIsInfected(t *testing.T) {
	s := New()

	v := s.Scan([]byte("%PDF-1.4 hello MZ"), "doc.pdf")
	assert.Equal(t, StatusInfected, v.Status)
	assert.Equal(t, ClassSafe, v.Class)
	assert.Equal(t, "PE", v.Signature)

	data := append([]byte("PK\x03\x04"), []byte("....MZ....random zip payload....")...)
	assert.Equal(t, StatusInfected, s.Scan(data, "report.docx").Status)
}

func TestStrictPEIgnoresStrayMZBytes(t *testing.T) {
	s := New(WithStrictPE())

	data := append([]byte("PK\x03\x04"), []byte("....MZ....random zip payload....")...)
	assert.Equal(t, StatusClean, s.Scan(data, "report.docx").Status)
	assert.Equal(t, StatusClean, s.Scan([]byte("%PDF-1.4 hello MZ"), "doc.pdf").Status)

	withPE := append([]byte("\xff\xd8\xff\xe0 jpeg data "), peStub()...)
	assert.Equal(t, StatusInfected, s.Scan(withPE, "cat.jpg").Status)
	assert.Equal(t, StatusInfected, s.Scan([]byte("MZ\x90\x00"), "payload.bin").Status)
}

func TestEmbeddedExecutables(t *testing.T) {
	s := New()

	withPE := append([]byte("\xff\xd8\xff\xe0 jpeg data "), peStub()...)
	v := s.Scan(withPE, "cat.jpg")
	assert.Equal(t, StatusInfected, v.Status)
	assert.Equal(t, "PE", v.Signature)

	withELF := append([]byte("%PDF-1.7 "), []byte("\x7fELF\x02\x01\x01")...)
	v = s.Scan(withELF, "doc.pdf")
	assert.Equal(t, StatusInfected, v.Status)
	assert.Equal(t, "ELF", v.Signature)

	v = s.Scan([]byte("MZ\x90\x00"), "payload.bin")
	assert.Equal(t, StatusInfected, v.Status)
	assert.Equal(t, ClassUnrecognized, v.Class)
}

func TestScanRecoversFromPanic(t *testing.T) {
	s := New(WithSignatures(Signature{Name: "boom", Match: func([]byte) bool { panic("bad buffer") }}))

	v := s.Scan([]byte("x"), "a.txt")
	assert.Equal(t, StatusError, v.Status)
	assert.Contains(t, v.Reason, "bad buffer")
}

func TestDeepPolicy(t *testing.T) {
	p, err := NewPolicy("deep", New())
	require.NoError(t, err)
	require.Equal(t, "deep", p.Name())

	v := p.Evaluate(context.Background(), []byte("#!/bin/sh\nrm -rf /\n"), Target{Name: "image.png", ContentType: "image/png"})
	assert.Equal(t, StatusInfected, v.Status)
	assert.Equal(t, "shebang", v.Signature)

	v = p.Evaluate(context.Background(), []byte("#!/bin/sh\necho hi\n"), Target{Name: "run.txt", ContentType: "text/plain"})
	assert.Equal(t, StatusClean, v.Status)

	v = p.Evaluate(context.Background(), []byte("hello world"), Target{Name: "a.txt", ContentType: "text/plain"})
	assert.Equal(t, StatusClean, v.Status)

}

func TestNewPolicy(t *testing.T) {
	for name, want := range map[string]string{"": "deep", "deep": "deep", "SIGNATURE": "signature", " signature ": "signature"} {
		p, err := NewPolicy(name, New())
		require.NoError(t, err, name)
		assert.Equal(t, want, p.Name(), name)
	}

	_, err := NewPolicy("clamav", New())
	require.ErrorIs(t, err, ErrUnknownPolicy)
}
