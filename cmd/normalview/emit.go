package main

import (
	"fmt"
	"io"

	"github.com/gogpu/computeview/shader"
)

// emitProgram writes the program's library translated to the named target.
func emitProgram(w io.Writer, prog shader.Program, target string) error {
	lib := prog.Library
	switch target {
	case "msl":
		src, err := lib.MSL()
		if err != nil {
			return err
		}
		_, err = io.WriteString(w, src)
		return err
	case "glsl":
		for _, ep := range lib.EntryPoints() {
			src, err := lib.GLSL(ep.Name)
			if err != nil {
				return err
			}
			if _, err := fmt.Fprintf(w, "// %s (%s)\n%s\n", ep.Name, ep.Stage, src); err != nil {
				return err
			}
		}
		return nil
	case "spirv":
		code, err := lib.SPIRV()
		if err != nil {
			return err
		}
		_, err = w.Write(code)
		return err
	default:
		return fmt.Errorf("unknown target %q (want msl, glsl or spirv)", target)
	}
}
