package manifest

import (
	"encoding/xml"
	"io"
	"os"

	perrors "github.com/huanfeng/xapk-patcher/internal/errors"
	"github.com/huanfeng/xapk-patcher/pkg/project"
)

const xmlnsPrefix = "xmlns"

// ScanNamespaces collects every prefix to URI binding declared anywhere in
// the document at path. The default namespace is stored under "". When a
// prefix is bound more than once the first binding wins.
func ScanNamespaces(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, perrors.NewStructuralError("MANIFEST_MISSING", path)
		}
		return nil, perrors.NewFileSystemError("MANIFEST_OPEN", "failed to open "+path, err)
	}
	defer f.Close()

	ns, err := scanNamespaces(f)
	if err != nil {
		return nil, perrors.WrapError(err, perrors.ErrorTypeFormat, "MANIFEST_PARSE", "failed to scan "+path)
	}
	return ns, nil
}

func scanNamespaces(r io.Reader) (map[string]string, error) {
	dec := xml.NewDecoder(r)
	dec.CharsetReader = project.CharsetReader

	ns := make(map[string]string)
	for {
		tok, err := dec.RawToken()
		if err == io.EOF {
			return ns, nil
		}
		if err != nil {
			return nil, err
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		for _, a := range start.Attr {
			var prefix string
			switch {
			case a.Name.Space == xmlnsPrefix:
				prefix = a.Name.Local
			case a.Name.Space == "" && a.Name.Local == xmlnsPrefix:
				prefix = ""
			default:
				continue
			}
			if _, seen := ns[prefix]; !seen {
				ns[prefix] = a.Value
			}
		}
	}
}
