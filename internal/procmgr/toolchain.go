package procmgr

import (
	"strings"

	pkgerrors "gdbc/pkg/errors"
)

// Language is the source language of a submission.
type Language string

const (
	LanguageC   Language = "c"
	LanguageCPP Language = "cpp"
)

// ParseLanguage accepts "c" or "cpp".
func ParseLanguage(s string) (Language, error) {
	switch Language(s) {
	case LanguageC, LanguageCPP:
		return Language(s), nil
	}
	return "", pkgerrors.New(pkgerrors.LanguageNotSupported)
}

// SourceExt is the file extension used for sources in this language.
func (l Language) SourceExt() string {
	if l == LanguageCPP {
		return "cpp"
	}
	return "c"
}

// CompilerKind is the compiler family.
type CompilerKind string

const (
	CompilerGCC   CompilerKind = "gcc"
	CompilerClang CompilerKind = "clang"
)

// ParseCompiler accepts "gcc" or "clang".
func ParseCompiler(s string) (CompilerKind, error) {
	switch CompilerKind(s) {
	case CompilerGCC, CompilerClang:
		return CompilerKind(s), nil
	}
	return "", pkgerrors.New(pkgerrors.CompilerNotSupported)
}

// Toolchain holds absolute paths of the compilers and the debugger.
type Toolchain struct {
	GCC      string `yaml:"gcc"`
	GXX      string `yaml:"gxx"`
	Clang    string `yaml:"clang"`
	ClangXX  string `yaml:"clangxx"`
	Debugger string `yaml:"debugger"`
}

// DefaultToolchain uses the standard /usr/bin locations.
func DefaultToolchain() Toolchain {
	return Toolchain{
		GCC:      "/usr/bin/gcc",
		GXX:      "/usr/bin/g++",
		Clang:    "/usr/bin/clang",
		ClangXX:  "/usr/bin/clang++",
		Debugger: "/usr/bin/gdb",
	}
}

// withDefaults fills empty entries from DefaultToolchain.
func (t Toolchain) withDefaults() Toolchain {
	def := DefaultToolchain()
	if strings.TrimSpace(t.GCC) == "" {
		t.GCC = def.GCC
	}
	if strings.TrimSpace(t.GXX) == "" {
		t.GXX = def.GXX
	}
	if strings.TrimSpace(t.Clang) == "" {
		t.Clang = def.Clang
	}
	if strings.TrimSpace(t.ClangXX) == "" {
		t.ClangXX = def.ClangXX
	}
	if strings.TrimSpace(t.Debugger) == "" {
		t.Debugger = def.Debugger
	}
	return t
}

// CompilerPath returns the compiler binary for a language and family.
func (t Toolchain) CompilerPath(lang Language, kind CompilerKind) (string, error) {
	switch {
	case lang == LanguageC && kind == CompilerGCC:
		return t.GCC, nil
	case lang == LanguageCPP && kind == CompilerGCC:
		return t.GXX, nil
	case lang == LanguageC && kind == CompilerClang:
		return t.Clang, nil
	case lang == LanguageCPP && kind == CompilerClang:
		return t.ClangXX, nil
	}
	if _, err := ParseLanguage(string(lang)); err != nil {
		return "", err
	}
	return "", pkgerrors.New(pkgerrors.CompilerNotSupported)
}

// CompileArgv is [compiler, source, "-o", output, ("-g"), options...].
func CompileArgv(compiler, source, output string, debug bool, options []string) []string {
	argv := make([]string, 0, 5+len(options))
	argv = append(argv, compiler, source, "-o", output)
	if debug {
		argv = append(argv, "-g")
	}
	return append(argv, options...)
}

// RunArgv is [(debugger), output, args...].
func RunArgv(debugger, output string, debug bool, args []string) []string {
	argv := make([]string, 0, 2+len(args))
	if debug {
		argv = append(argv, debugger)
	}
	argv = append(argv, output)
	return append(argv, args...)
}
