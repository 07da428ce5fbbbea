package hcl

import (
	"math"

	"github.com/hashicorp/hcl/v2"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
	"github.com/zclconf/go-cty/cty/function/stdlib"
)

// degFunc converts degrees to radians.
var degFunc = function.New(&function.Spec{
	Params: []function.Parameter{{Name: "degrees", Type: cty.Number}},
	Type:   function.StaticReturnType(cty.Number),
	Impl: func(args []cty.Value, _ cty.Type) (cty.Value, error) {
		d, _ := args[0].AsBigFloat().Float64()
		return cty.NumberFloatVal(d * math.Pi / 180), nil
	},
})

func evalContext() *hcl.EvalContext {
	return &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"pi": cty.NumberFloatVal(math.Pi),
		},
		Functions: map[string]function.Function{
			"deg":    degFunc,
			"range":  stdlib.RangeFunc,
			"min":    stdlib.MinFunc,
			"max":    stdlib.MaxFunc,
			"abs":    stdlib.AbsoluteFunc,
			"concat": stdlib.ConcatFunc,
		},
	}
}
