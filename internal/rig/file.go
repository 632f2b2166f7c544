// Package rig loads hand-authored skeleton and animation fixtures from JSON
// or YAML and builds them into studio models.
package rig

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

var validate = validator.New()

// File is the on-disk description of one model.
type File struct {
	Name        string       `json:"name" yaml:"name" validate:"required"`
	Bones       []Bone       `json:"bones" yaml:"bones" validate:"required,min=1,max=256,dive"`
	Attachments []Attachment `json:"attachments,omitempty" yaml:"attachments,omitempty" validate:"dive"`
	Chains      []Chain      `json:"chains,omitempty" yaml:"chains,omitempty" validate:"dive"`
	Params      []Param      `json:"params,omitempty" yaml:"params,omitempty" validate:"dive"`
	Animations  []Animation  `json:"animations" yaml:"animations" validate:"required,min=1,dive"`
	Sequences   []Sequence   `json:"sequences" yaml:"sequences" validate:"required,min=1,dive"`
}

// Bone is placed relative to its parent. An empty parent makes a root.
type Bone struct {
	Name   string     `json:"name" yaml:"name" validate:"required"`
	Parent string     `json:"parent,omitempty" yaml:"parent,omitempty"`
	Pos    [3]float64 `json:"pos" yaml:"pos"`
	Rot    [3]float64 `json:"rot" yaml:"rot"` // Euler XYZ, radians
	Flags  []string   `json:"flags,omitempty" yaml:"flags,omitempty" validate:"dive,oneof=vertex hitbox attachment bonemerge fixed"`
}

type Attachment struct {
	Name string     `json:"name" yaml:"name" validate:"required"`
	Bone string     `json:"bone" yaml:"bone" validate:"required"`
	Pos  [3]float64 `json:"pos" yaml:"pos"`
}

// Chain is a hip, knee and foot triple.
type Chain struct {
	Name    string     `json:"name" yaml:"name" validate:"required"`
	Hip     string     `json:"hip" yaml:"hip" validate:"required"`
	Knee    string     `json:"knee" yaml:"knee" validate:"required"`
	Foot    string     `json:"foot" yaml:"foot" validate:"required"`
	KneeDir [3]float64 `json:"knee_dir" yaml:"knee_dir"`
}

type Param struct {
	Name  string  `json:"name" yaml:"name" validate:"required"`
	Start float64 `json:"start" yaml:"start"`
	End   float64 `json:"end" yaml:"end"`
	Loop  float64 `json:"loop,omitempty" yaml:"loop,omitempty" validate:"gte=0"`
}

type Animation struct {
	Name   string  `json:"name" yaml:"name" validate:"required"`
	FPS    float64 `json:"fps" yaml:"fps" validate:"gt=0"`
	Frames int     `json:"frames" yaml:"frames" validate:"min=1"`
	Loop   bool    `json:"loop,omitempty" yaml:"loop,omitempty"`
	Delta  bool    `json:"delta,omitempty" yaml:"delta,omitempty"`
	Post   bool    `json:"post,omitempty" yaml:"post,omitempty"`
	Tracks []Track `json:"tracks,omitempty" yaml:"tracks,omitempty" validate:"dive"`
	Rules  []Rule  `json:"rules,omitempty" yaml:"rules,omitempty" validate:"dive"`
}

// Track holds per-frame local values of one bone. A channel with fewer
// samples than frames holds its last sample; an empty channel keeps the
// base pose.
type Track struct {
	Bone string       `json:"bone" yaml:"bone" validate:"required"`
	Pos  [][3]float64 `json:"pos,omitempty" yaml:"pos,omitempty"`
	Rot  [][3]float64 `json:"rot,omitempty" yaml:"rot,omitempty"`
}

type Rule struct {
	Type   string     `json:"type" yaml:"type" validate:"oneof=self world ground release unlatch"`
	Chain  string     `json:"chain" yaml:"chain" validate:"required"`
	Slot   *int       `json:"slot,omitempty" yaml:"slot,omitempty"`
	Bone   string     `json:"bone,omitempty" yaml:"bone,omitempty"`
	Window [4]float64 `json:"window" yaml:"window"` // start, peak, tail, end
	Floor  float64    `json:"floor,omitempty" yaml:"floor,omitempty"`
	Height float64    `json:"height,omitempty" yaml:"height,omitempty"`
	Pos    [3]float64 `json:"pos,omitempty" yaml:"pos,omitempty"`
}

type Sequence struct {
	Name      string    `json:"name" yaml:"name" validate:"required"`
	Anims     []string  `json:"anims" yaml:"anims" validate:"required,min=1"`
	Grid      [2]int    `json:"grid,omitempty" yaml:"grid,omitempty"`
	Params    [2]string `json:"params,omitempty" yaml:"params,omitempty"`
	CyclePose string    `json:"cycle_pose,omitempty" yaml:"cycle_pose,omitempty"`
	Flags     []string  `json:"flags,omitempty" yaml:"flags,omitempty" validate:"dive,oneof=loop delta post worldspace realtime local"`
	Layers    []Layer   `json:"layers,omitempty" yaml:"layers,omitempty" validate:"dive"`
	Locks     []Lock    `json:"locks,omitempty" yaml:"locks,omitempty" validate:"dive"`
}

type Layer struct {
	Sequence string     `json:"sequence" yaml:"sequence" validate:"required"`
	Window   [4]float64 `json:"window" yaml:"window"`
	Pose     string     `json:"pose,omitempty" yaml:"pose,omitempty"`
	Flags    []string   `json:"flags,omitempty" yaml:"flags,omitempty" validate:"dive,oneof=noblend xfade local"`
}

type Lock struct {
	Chain     string  `json:"chain" yaml:"chain" validate:"required"`
	PosWeight float64 `json:"pos_weight" yaml:"pos_weight" validate:"gte=0,lte=1"`
	RotWeight float64 `json:"rot_weight" yaml:"rot_weight" validate:"gte=0,lte=1"`
}

// Load reads a rig file. Files ending in .yaml or .yml are YAML, anything
// else JSON.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("rig: read %s: %w", path, err)
	}
	f, err := Parse(data, isYAML(path))
	if err != nil {
		return nil, fmt.Errorf("rig: %s: %w", path, err)
	}
	return f, nil
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

// Parse decodes and validates a rig.
func Parse(data []byte, asYAML bool) (*File, error) {
	var f File
	var err error
	if asYAML {
		err = yaml.Unmarshal(data, &f)
	} else {
		err = json.Unmarshal(data, &f)
	}
	if err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// Validate checks field constraints. Name references are checked by Build.
func (f *File) Validate() error {
	if err := validate.Struct(f); err != nil {
		return fmt.Errorf("validate: %w", err)
	}
	return nil
}
