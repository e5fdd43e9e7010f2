package main

import (
	"encoding/json"
	"fmt"
	"os"

	_ "github.com/o9nn/otterengine/pkg/layer/batchnorm"
	_ "github.com/o9nn/otterengine/pkg/layer/conv"
	_ "github.com/o9nn/otterengine/pkg/layer/input"
	_ "github.com/o9nn/otterengine/pkg/layer/relu"
	_ "github.com/o9nn/otterengine/pkg/layer/split"

	"github.com/o9nn/otterengine/pkg/graph"
	"github.com/o9nn/otterengine/pkg/paramdict"
)

// jsonLayer is the on-disk shape of one entry in a network description
// file: a registry type tag, an instance name, the blob names it
// consumes/produces, and an int-keyed option map. A value with a
// fractional part becomes a ParamDict float option; everything else
// becomes an int option, mirroring ParamDict's own int/float split.
// BatchNorm/Activation mirror the original format's fused-attachment
// keys: a layer entry may carry its own option map plus one of these,
// and the graph builder synthesizes the attached layer(s) at Compile
// time.
type jsonLayer struct {
	Type             string             `json:"type"`
	Name             string             `json:"name,omitempty"`
	Inputs           []string           `json:"inputs,omitempty"`
	Outputs          []string           `json:"outputs,omitempty"`
	Params           map[string]float64 `json:"params,omitempty"`
	BatchNorm        map[string]float64 `json:"batchnorm,omitempty"`
	Activation       string             `json:"activation,omitempty"`
	ActivationParams map[string]float64 `json:"activation_params,omitempty"`
}

func paramDictFromJSON(m map[string]float64) (*paramdict.ParamDict, error) {
	pd := paramdict.New()
	for k, v := range m {
		var key int
		if _, err := fmt.Sscanf(k, "%d", &key); err != nil {
			return nil, fmt.Errorf("bad param key %q: %w", k, err)
		}
		if v == float64(int64(v)) {
			pd.SetInt(key, int64(v))
		} else {
			pd.SetFloat(key, v)
		}
	}
	return pd, nil
}

func loadSpecs(path string) ([]graph.LayerSpec, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading network description: %w", err)
	}
	var layers []jsonLayer
	if err := json.Unmarshal(raw, &layers); err != nil {
		return nil, fmt.Errorf("parsing network description: %w", err)
	}

	specs := make([]graph.LayerSpec, 0, len(layers))
	for _, jl := range layers {
		pd, err := paramDictFromJSON(jl.Params)
		if err != nil {
			return nil, fmt.Errorf("layer %q: %w", jl.Name, err)
		}
		spec := graph.LayerSpec{
			Type:    jl.Type,
			Name:    jl.Name,
			Inputs:  jl.Inputs,
			Outputs: jl.Outputs,
			Params:  pd,
		}
		if jl.BatchNorm != nil {
			bnPd, err := paramDictFromJSON(jl.BatchNorm)
			if err != nil {
				return nil, fmt.Errorf("layer %q: batchnorm: %w", jl.Name, err)
			}
			spec.BatchNorm = bnPd
		}
		if jl.Activation != "" {
			actPd, err := paramDictFromJSON(jl.ActivationParams)
			if err != nil {
				return nil, fmt.Errorf("layer %q: activation_params: %w", jl.Name, err)
			}
			spec.Activation = jl.Activation
			spec.ActivationParams = actPd
		}
		specs = append(specs, spec)
	}
	return specs, nil
}
