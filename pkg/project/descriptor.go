package project

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	perrors "github.com/huanfeng/xapk-patcher/internal/errors"
)

const doNotCompressKey = "doNotCompress"

// Descriptor is an apktool.yml document. It is edited as a yaml.Node so that
// keys the pipeline does not touch keep their order and formatting.
type Descriptor struct {
	path string
	doc  yaml.Node
}

// ReadDescriptor loads the tree's apktool.yml
func (t *Tree) ReadDescriptor() (*Descriptor, error) {
	return LoadDescriptor(t.DescriptorPath())
}

// LoadDescriptor loads an apktool.yml from path
func LoadDescriptor(path string) (*Descriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, perrors.NewStructuralError("DESCRIPTOR_MISSING", path)
		}
		return nil, perrors.NewFileSystemError("DESCRIPTOR_READ", "failed to read "+path, err)
	}

	d := &Descriptor{path: path}
	if err := yaml.Unmarshal(data, &d.doc); err != nil {
		return nil, perrors.WrapError(err, perrors.ErrorTypeFormat, "DESCRIPTOR_PARSE",
			"failed to parse "+path)
	}
	if d.root() == nil {
		return nil, perrors.NewError(perrors.ErrorTypeFormat, "DESCRIPTOR_SHAPE",
			fmt.Sprintf("%s is not a mapping", path))
	}
	return d, nil
}

func (d *Descriptor) root() *yaml.Node {
	if d.doc.Kind != yaml.DocumentNode || len(d.doc.Content) == 0 {
		return nil
	}
	if n := d.doc.Content[0]; n.Kind == yaml.MappingNode {
		return n
	}
	return nil
}

func (d *Descriptor) lookup(key string) *yaml.Node {
	root := d.root()
	for i := 0; i+1 < len(root.Content); i += 2 {
		if root.Content[i].Value == key {
			return root.Content[i+1]
		}
	}
	return nil
}

// Path returns the file the descriptor was loaded from
func (d *Descriptor) Path() string {
	return d.path
}

// String returns the scalar value of a top-level key
func (d *Descriptor) String(key string) string {
	if n := d.lookup(key); n != nil && n.Kind == yaml.ScalarNode {
		return n.Value
	}
	return ""
}

// DoNotCompress returns the compression exemption list
func (d *Descriptor) DoNotCompress() []string {
	n := d.lookup(doNotCompressKey)
	if n == nil || n.Kind != yaml.SequenceNode {
		return nil
	}
	out := make([]string, 0, len(n.Content))
	for _, item := range n.Content {
		if item.Kind == yaml.ScalarNode {
			out = append(out, item.Value)
		}
	}
	return out
}

// SetDoNotCompress replaces the compression exemption list, adding the key
// when it is absent.
func (d *Descriptor) SetDoNotCompress(entries []string) {
	seq := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
	for _, e := range entries {
		seq.Content = append(seq.Content, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: e})
	}

	root := d.root()
	for i := 0; i+1 < len(root.Content); i += 2 {
		if root.Content[i].Value == doNotCompressKey {
			root.Content[i+1] = seq
			return
		}
	}
	root.Content = append(root.Content,
		&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: doNotCompressKey}, seq)
}

// Bytes encodes the descriptor
func (d *Descriptor) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&d.doc); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Save writes the descriptor back to where it was loaded from
func (d *Descriptor) Save() error {
	data, err := d.Bytes()
	if err != nil {
		return perrors.WrapError(err, perrors.ErrorTypeFormat, "DESCRIPTOR_ENCODE", "failed to encode "+d.path)
	}
	if err := os.WriteFile(d.path, data, 0644); err != nil {
		return perrors.NewFileSystemError("DESCRIPTOR_WRITE", "failed to write "+d.path, err)
	}
	return nil
}
