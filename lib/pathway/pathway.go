// Package pathway cuts pathway-sized matrices out of an assay and
// decomposes them, one at a time or as a bounded-parallel batch.
package pathway

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

var (
	ErrTooFewFeatures = errors.New("too few measured features")
	ErrUnknownPathway = errors.New("unknown pathway")
)

// A Pathway is a named set of features analysed together.
type Pathway struct {
	Name        string   `json:"name" yaml:"name"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
	Features    []string `json:"features" yaml:"features"`
}

// An Assay is a samples x features measurement matrix with named columns.
type Assay struct {
	features []string
	index    map[string]int
	data     *mat.Dense
}

func NewAssay(features []string, data *mat.Dense) (*Assay, error) {
	if data == nil {
		return nil, fmt.Errorf("assay has no data")
	}
	_, c := data.Dims()
	if len(features) != c {
		return nil, fmt.Errorf("assay has %d columns but %d feature names", c, len(features))
	}
	index := make(map[string]int, len(features))
	for i, f := range features {
		if _, dup := index[f]; dup {
			return nil, fmt.Errorf("feature %s appears twice in assay", f)
		}
		index[f] = i
	}
	return &Assay{features: features, index: index, data: data}, nil
}

func (a *Assay) Features() []string {
	return a.features
}

func (a *Assay) Samples() int {
	r, _ := a.data.Dims()
	return r
}

// Measured returns the features of p that the assay has, in pathway order
// and without repeats.
func (a *Assay) Measured(p Pathway) []string {
	seen := make(map[string]bool, len(p.Features))
	ret := make([]string, 0, len(p.Features))
	for _, f := range p.Features {
		if _, ok := a.index[f]; !ok || seen[f] {
			continue
		}
		seen[f] = true
		ret = append(ret, f)
	}
	return ret
}

// Subset copies the columns of the measured features of p. It fails with
// ErrTooFewFeatures when fewer than minFeatures of them are measured.
func (a *Assay) Subset(p Pathway, minFeatures int) (*mat.Dense, []string, error) {
	measured := a.Measured(p)
	if minFeatures < 1 {
		minFeatures = 1
	}
	if len(measured) < minFeatures {
		return nil, nil, fmt.Errorf("%w: pathway %s has %d of %d features measured, need %d",
			ErrTooFewFeatures, p.Name, len(measured), len(p.Features), minFeatures)
	}
	n, _ := a.data.Dims()
	x := mat.NewDense(n, len(measured), nil)
	for j, f := range measured {
		x.SetCol(j, mat.Col(nil, a.index[f], a.data))
	}
	return x, measured, nil
}

// A Collection is an ordered set of uniquely named pathways.
type Collection struct {
	pathways []Pathway
	byName   map[string]int
}

func NewCollection(pathways []Pathway) (*Collection, error) {
	c := &Collection{
		pathways: make([]Pathway, 0, len(pathways)),
		byName:   make(map[string]int, len(pathways)),
	}
	for _, p := range pathways {
		if p.Name == "" {
			return nil, fmt.Errorf("pathway without a name")
		}
		if _, dup := c.byName[p.Name]; dup {
			return nil, fmt.Errorf("pathway %s is defined twice", p.Name)
		}
		c.byName[p.Name] = len(c.pathways)
		c.pathways = append(c.pathways, p)
	}
	return c, nil
}

func (c *Collection) Len() int {
	return len(c.pathways)
}

func (c *Collection) All() []Pathway {
	return c.pathways
}

func (c *Collection) Get(name string) (Pathway, error) {
	i, ok := c.byName[name]
	if !ok {
		return Pathway{}, fmt.Errorf("%w: %s", ErrUnknownPathway, name)
	}
	return c.pathways[i], nil
}

// Trim keeps the pathways with at least minFeatures measured features in
// assay and returns the names of the others.
func (c *Collection) Trim(assay *Assay, minFeatures int) (*Collection, []string) {
	kept := &Collection{byName: make(map[string]int)}
	var dropped []string
	for _, p := range c.pathways {
		if len(assay.Measured(p)) < minFeatures {
			dropped = append(dropped, p.Name)
			continue
		}
		kept.byName[p.Name] = len(kept.pathways)
		kept.pathways = append(kept.pathways, p)
	}
	return kept, dropped
}
