package scan

import (
	"bytes"
	"encoding/binary"
)

// Signature 字节签名.
type Signature struct {
	Name  string
	Match func(data []byte) bool
}

var (
	mzMagic  = []byte("MZ")
	peMagic  = []byte("PE\x00\x00")
	elfMagic = []byte("\x7fELF")
)

// peHeaderOffset DOS 头中 e_lfanew 字段的偏移.
const peHeaderOffset = 0x3c

// ExecutableSignatures 返回 PE 与 ELF 签名，两者都在任意位置查找魔数.
func ExecutableSignatures() []Signature {
	return []Signature{
		{Name: "PE", Match: matchMZ},
		{Name: "ELF", Match: matchELF},
	}
}

// StrictExecutableSignatures 与 ExecutableSignatures 相同，但内嵌的 MZ
// 必须在 e_lfanew 处带有 PE\0\0 才算命中.
func StrictExecutableSignatures() []Signature {
	return []Signature{
		{Name: "PE", Match: matchPE},
		{Name: "ELF", Match: matchELF},
	}
}

// matchELF 在任意位置查找 ELF 魔数.
func matchELF(data []byte) bool {
	return bytes.Contains(data, elfMagic)
}

// matchMZ 在任意位置查找 MZ 标记.
func matchMZ(data []byte) bool {
	return bytes.Contains(data, mzMagic)
}

// matchPE 查找 MZ 标记.
// 文件以 MZ 开头直接命中；内嵌的 MZ 还需在 e_lfanew 处找到 PE\0\0.
func matchPE(data []byte) bool {
	if bytes.HasPrefix(data, mzMagic) {
		return true
	}

	for from := 1; from < len(data); {
		i := bytes.Index(data[from:], mzMagic)
		if i < 0 {
			return false
		}

		pos := from + i
		if embeddedPE(data, pos) {
			return true
		}

		from = pos + 1
	}

	return false
}

func embeddedPE(data []byte, pos int) bool {
	field := pos + peHeaderOffset
	if field+4 > len(data) {
		return false
	}

	lfanew := int(binary.LittleEndian.Uint32(data[field : field+4]))
	hdr := pos + lfanew

	if lfanew <= 0 || hdr < 0 || hdr+len(peMagic) > len(data) {
		return false
	}

	return bytes.Equal(data[hdr:hdr+len(peMagic)], peMagic)
}
