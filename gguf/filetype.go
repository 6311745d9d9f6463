package gguf

import (
	"fmt"
	"strings"
)

// FileType is the overall quantization scheme of a GGUF file, stored in its
// general.file_type metadata. Values match the llama.cpp ftype enum, which is
// also what llama-quantize accepts as its type argument.
type FileType uint32

const (
	FileTypeF32 FileType = iota
	FileTypeF16
	FileTypeQ4_0
	FileTypeQ4_1
	FileTypeQ4_1_F16
	FileTypeQ4_2 // unused
	FileTypeQ4_3 // unused
	FileTypeQ8_0
	FileTypeQ5_0
	FileTypeQ5_1
	FileTypeQ2_K
	FileTypeQ3_K_S
	FileTypeQ3_K_M
	FileTypeQ3_K_L
	FileTypeQ4_K_S
	FileTypeQ4_K_M
	FileTypeQ5_K_S
	FileTypeQ5_K_M
	FileTypeQ6_K
	FileTypeIQ2_XXS
	FileTypeIQ2_XS
	FileTypeQ2_K_S
	FileTypeIQ3_XS
	FileTypeIQ3_XXS
	FileTypeIQ1_S
	FileTypeIQ4_NL
	FileTypeIQ3_S
	FileTypeIQ3_M
	FileTypeIQ2_S
	FileTypeIQ2_M
	FileTypeIQ4_XS
	FileTypeIQ1_M
	FileTypeBF16

	FileTypeUnknown
)

var fileTypeMap = map[string]FileType{
	"F32":      FileTypeF32,
	"F16":      FileTypeF16,
	"Q4_0":     FileTypeQ4_0,
	"Q4_1":     FileTypeQ4_1,
	"Q4_1_F16": FileTypeQ4_1_F16,
	"Q8_0":     FileTypeQ8_0,
	"Q5_0":     FileTypeQ5_0,
	"Q5_1":     FileTypeQ5_1,
	"Q2_K":     FileTypeQ2_K,
	"Q3_K_S":   FileTypeQ3_K_S,
	"Q3_K_M":   FileTypeQ3_K_M,
	"Q3_K_L":   FileTypeQ3_K_L,
	"Q4_K_S":   FileTypeQ4_K_S,
	"Q4_K_M":   FileTypeQ4_K_M,
	"Q5_K_S":   FileTypeQ5_K_S,
	"Q5_K_M":   FileTypeQ5_K_M,
	"Q6_K":     FileTypeQ6_K,
	"IQ2_XXS":  FileTypeIQ2_XXS,
	"IQ2_XS":   FileTypeIQ2_XS,
	"Q2_K_S":   FileTypeQ2_K_S,
	"IQ3_XS":   FileTypeIQ3_XS,
	"IQ3_XXS":  FileTypeIQ3_XXS,
	"IQ1_S":    FileTypeIQ1_S,
	"IQ4_NL":   FileTypeIQ4_NL,
	"IQ3_S":    FileTypeIQ3_S,
	"IQ3_M":    FileTypeIQ3_M,
	"IQ2_S":    FileTypeIQ2_S,
	"IQ2_M":    FileTypeIQ2_M,
	"IQ4_XS":   FileTypeIQ4_XS,
	"IQ1_M":    FileTypeIQ1_M,
	"BF16":     FileTypeBF16,
}

func ParseFileType(s string) (FileType, error) {
	if ft, exists := fileTypeMap[strings.ToUpper(s)]; exists {
		return ft, nil
	}
	return FileTypeUnknown, fmt.Errorf("unknown file type: %s", s)
}

func (t FileType) String() string {
	for s, ft := range fileTypeMap {
		if ft == t {
			return s
		}
	}
	return "unknown"
}

// RequiresImatrix reports whether a quantization type token needs an
// importance matrix. llama-quantize refuses the IQ family without one.
func RequiresImatrix(tag string) bool {
	return strings.HasPrefix(strings.ToUpper(tag), "IQ")
}
