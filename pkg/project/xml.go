package project

import (
	"io"
	"os"
	"strings"

	"github.com/beevik/etree"
	"golang.org/x/text/encoding/htmlindex"

	perrors "github.com/huanfeng/xapk-patcher/internal/errors"
)

const defaultEncoding = "utf-8"

// ReadXML parses a decoded XML document
func ReadXML(path string) (*etree.Document, error) {
	doc := etree.NewDocument()
	doc.ReadSettings.CharsetReader = CharsetReader
	if err := doc.ReadFromFile(path); err != nil {
		if os.IsNotExist(err) {
			return nil, perrors.NewFileNotFoundError(path)
		}
		return nil, perrors.WrapError(err, perrors.ErrorTypeFormat, "XML_PARSE", "failed to parse "+path)
	}
	if doc.Root() == nil {
		return nil, perrors.NewError(perrors.ErrorTypeFormat, "XML_EMPTY", path+" has no root element")
	}
	return doc, nil
}

// WriteXML writes doc to path with an explicit XML declaration that keeps
// the document's declared encoding.
func WriteXML(doc *etree.Document, path string) error {
	EnsureDeclaration(doc)
	data, err := doc.WriteToBytes()
	if err != nil {
		return perrors.NewFileSystemError("XML_WRITE", "failed to encode "+path, err)
	}
	if enc := DeclaredEncoding(doc); !isUTF8(enc) {
		e, err := htmlindex.Get(enc)
		if err != nil {
			return perrors.NewError(perrors.ErrorTypeFormat, "XML_ENCODING", "unsupported encoding "+enc+" in "+path)
		}
		if data, err = e.NewEncoder().Bytes(data); err != nil {
			return perrors.WrapError(err, perrors.ErrorTypeFormat, "XML_ENCODING", "failed to encode "+path+" as "+enc)
		}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return perrors.NewFileSystemError("XML_WRITE", "failed to write "+path, err)
	}
	return nil
}

// CharsetReader decodes documents declared in a non UTF-8 encoding
func CharsetReader(charset string, input io.Reader) (io.Reader, error) {
	if isUTF8(charset) {
		return input, nil
	}
	e, err := htmlindex.Get(charset)
	if err != nil {
		return nil, err
	}
	return e.NewDecoder().Reader(input), nil
}

func isUTF8(name string) bool {
	switch strings.ToLower(name) {
	case "", "utf-8", "utf8":
		return true
	}
	return false
}

// EnsureDeclaration makes the first token of doc an <?xml?> declaration
func EnsureDeclaration(doc *etree.Document) {
	for _, tok := range doc.Child {
		if pi, ok := tok.(*etree.ProcInst); ok && pi.Target == "xml" {
			if !strings.Contains(pi.Inst, "encoding=") {
				pi.Inst += ` encoding="` + defaultEncoding + `"`
			}
			return
		}
	}

	pi := doc.CreateProcInst("xml", `version="1.0" encoding="`+defaultEncoding+`"`)
	doc.InsertChildAt(0, pi)
}

// DeclaredEncoding returns the encoding named by the declaration, or utf-8
func DeclaredEncoding(doc *etree.Document) string {
	for _, tok := range doc.Child {
		if pi, ok := tok.(*etree.ProcInst); ok && pi.Target == "xml" {
			const key = `encoding=`
			i := strings.Index(pi.Inst, key)
			if i < 0 {
				break
			}
			rest := pi.Inst[i+len(key):]
			if len(rest) < 2 {
				break
			}
			quote := rest[0]
			if end := strings.IndexByte(rest[1:], quote); end >= 0 {
				return rest[1 : end+1]
			}
		}
	}
	return defaultEncoding
}
