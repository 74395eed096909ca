// Package shader compiles WGSL to SPIR-V and runs the shader sandbox.
//
// Compilation goes through naga. A failed compile never replaces the bound
// program; the caller gets a ShaderCompileError carrying the compiler output.
package shader

import (
	"crypto/sha256"
	"embed"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/gogpu/naga"
	"github.com/san-kum/gfxlab/internal/core"
	"github.com/san-kum/gfxlab/internal/gpu"
)

//go:embed presets/*.wgsl
var presetFS embed.FS

// Prelude declares the uniform block and a full-screen vertex stage.
// Fragment sources are appended to it.
var Prelude = mustRead("presets/common.wgsl")

func mustRead(name string) string {
	b, err := presetFS.ReadFile(name)
	if err != nil {
		panic(err)
	}
	return string(b)
}

// UniformSpec names the uniform block a program must declare.
type UniformSpec struct {
	Group   int
	Binding int
	// Fields must all appear in the source.
	Fields []string
}

// DefaultUniforms matches [Prelude].
func DefaultUniforms() UniformSpec {
	return UniformSpec{Fields: []string{"time", "resolution", "pointer"}}
}

func (u UniformSpec) check(src string) error {
	decl := fmt.Sprintf("@group(%d) @binding(%d) var<uniform>", u.Group, u.Binding)
	if !strings.Contains(src, decl) {
		return fmt.Errorf("missing uniform block %q", decl)
	}
	for _, f := range u.Fields {
		if !strings.Contains(src, f+":") {
			return fmt.Errorf("uniform block has no %q field", f)
		}
	}
	return nil
}

type Program struct {
	Name  string
	SPIRV []uint32
	// Hash identifies the source text.
	Hash string
}

type Compiler struct {
	opts naga.CompileOptions
}

// NewCompiler returns a compiler with IR validation enabled.
func NewCompiler() *Compiler {
	return &Compiler{opts: naga.DefaultOptions()}
}

func (c *Compiler) WithDebug(debug bool) *Compiler {
	c.opts.Debug = debug
	return c
}

// Compile turns full WGSL source into a program. Every failure is a
// ShaderCompileError.
func (c *Compiler) Compile(name, source string, u UniformSpec) (*Program, error) {
	op := "shader.Compile"
	if strings.TrimSpace(source) == "" {
		return nil, core.Errorf(core.KindShaderCompile, op, "%s: empty source", name)
	}
	if err := u.check(source); err != nil {
		return nil, core.Errorf(core.KindShaderCompile, op, "%s: %v", name, err)
	}

	out, err := c.compile(source)
	if err != nil {
		return nil, &core.Error{Kind: core.KindShaderCompile, Op: op, Message: fmt.Sprintf("%s: %v", name, err), Err: err}
	}
	words, err := gpu.SPIRVWords(out)
	if err != nil {
		return nil, core.Wrap(core.KindShaderCompile, op, err)
	}

	sum := sha256.Sum256([]byte(source))
	core.Logger().Debug("shader: compiled", "name", name, "words", len(words))
	return &Program{Name: name, SPIRV: words, Hash: hex.EncodeToString(sum[:8])}, nil
}

// compile shields callers from panics inside the compiler on malformed input.
func (c *Compiler) compile(source string) (out []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("compiler panic: %v", r)
		}
	}()
	return naga.CompileWithOptions(source, c.opts)
}

// CompileFragment prepends [Prelude] to a fragment-stage source.
func (c *Compiler) CompileFragment(name, fragment string) (*Program, error) {
	if strings.TrimSpace(fragment) == "" {
		return nil, core.Errorf(core.KindShaderCompile, "shader.Compile", "%s: empty source", name)
	}
	return c.Compile(name, Prelude+"\n"+fragment, DefaultUniforms())
}
