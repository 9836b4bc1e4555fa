// Package render talks to the external image-rendering workflow engine.
package render

import (
	"strconv"

	"github.com/google/uuid"
)

// Node is one processing stage in a workflow graph.
type Node struct {
	ClassType string         `json:"class_type"`
	Inputs    map[string]any `json:"inputs"`
}

// Workflow is a declarative graph of generation stages keyed by node ID.
type Workflow map[string]Node

// Node IDs in the generated graph. The save node is the graph's declared
// output; job results are located under it in the history payload.
const (
	nodeCheckpoint     = "1"
	nodePositivePrompt = "2"
	nodeNegativePrompt = "3"
	nodeLatent         = "4"
	nodeSampler        = "5"
	nodeDecode         = "6"
	NodeSave           = "7"
)

const (
	defaultCheckpoint     = "sd_xl_base_1.0.safetensors"
	defaultNegativePrompt = "text, watermark, low quality, deformed"
	defaultSteps          = 20
	defaultCFG            = 7.0
)

// BuildWorkflow assembles the render graph for a prompt at the given square
// resolution (pixels per side). The sampler seed is randomized per job.
func BuildWorkflow(prompt, resolution string) Workflow {
	side, err := strconv.Atoi(resolution)
	if err != nil || side <= 0 {
		side = 512
	}

	return Workflow{
		nodeCheckpoint: {
			ClassType: "CheckpointLoaderSimple",
			Inputs: map[string]any{
				"ckpt_name": defaultCheckpoint,
			},
		},
		nodePositivePrompt: {
			ClassType: "CLIPTextEncode",
			Inputs: map[string]any{
				"text": prompt,
				"clip": []any{nodeCheckpoint, 1},
			},
		},
		nodeNegativePrompt: {
			ClassType: "CLIPTextEncode",
			Inputs: map[string]any{
				"text": defaultNegativePrompt,
				"clip": []any{nodeCheckpoint, 1},
			},
		},
		nodeLatent: {
			ClassType: "EmptyLatentImage",
			Inputs: map[string]any{
				"width":      side,
				"height":     side,
				"batch_size": 1,
			},
		},
		nodeSampler: {
			ClassType: "KSampler",
			Inputs: map[string]any{
				"seed":         randomSeed(),
				"steps":        defaultSteps,
				"cfg":          defaultCFG,
				"sampler_name": "euler",
				"scheduler":    "normal",
				"denoise":      1.0,
				"model":        []any{nodeCheckpoint, 0},
				"positive":     []any{nodePositivePrompt, 0},
				"negative":     []any{nodeNegativePrompt, 0},
				"latent_image": []any{nodeLatent, 0},
			},
		},
		nodeDecode: {
			ClassType: "VAEDecode",
			Inputs: map[string]any{
				"samples": []any{nodeSampler, 0},
				"vae":     []any{nodeCheckpoint, 2},
			},
		},
		NodeSave: {
			ClassType: "SaveImage",
			Inputs: map[string]any{
				"filename_prefix": "glimmer",
				"images":          []any{nodeDecode, 0},
			},
		},
	}
}

// randomSeed derives a sampler seed from a fresh UUID.
func randomSeed() uint32 {
	return uuid.New().ID()
}
