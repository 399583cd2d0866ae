package report

import (
	"encoding/json"
	"path"
	"reflect"
	"strings"

	"github.com/invopop/jsonschema"
	"github.com/stoewer/go-strcase"

	"github.com/lacquerai/cortex/internal/engine"
)

const schemaID = "https://cortex.lacquer.ai/schemas/report.json"

// Schema returns the JSON schema of the JSON report encoding.
func Schema() ([]byte, error) {
	r := &jsonschema.Reflector{
		KeyNamer:       strcase.SnakeCase,
		Namer:          definitionName,
		ExpandedStruct: true,
	}
	s := r.Reflect(&engine.Report{})
	s.ID = schemaID
	s.Title = "CORTEX diagnostic report"
	return json.MarshalIndent(s, "", "  ")
}

// definitionName qualifies type names with their package so that, say,
// health.Report and bias.Report get distinct definitions. Generic stage
// results are named after their value type.
func definitionName(t reflect.Type) string {
	name := t.Name()
	if i := strings.IndexByte(name, '['); i >= 0 {
		arg := name[i+1 : len(name)-1]
		arg = strings.TrimLeft(arg[strings.LastIndexByte(arg, '/')+1:], "*")
		name = name[:i] + "_" + strings.ReplaceAll(arg, ".", "_")
	}
	return strcase.SnakeCase(path.Base(t.PkgPath()) + "_" + name)
}
