// Copyright 2025 walteh LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package optimize

import (
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// 📄 TypeInfo is the best-effort sniff result for a byte payload
type TypeInfo struct {
	Ext  string
	Mime string
}

// MimeForExt maps an original extension to a mime guess, used when
// sniffing yields nothing usable and as the source-type baseline for the
// retype comparison.
func MimeForExt(ext string) string {
	switch ext {
	case "jpg":
		return "image/jpeg"
	case "svg":
		return "image/svg+xml"
	default:
		return "image/" + ext
	}
}

// DetectType sniffs the real type of transformed bytes. When the sniff is
// inconclusive it falls back to a guess derived from the file's original
// extension. A sniffed XML container, or an svg original extension, is
// force-normalized to svg: it is the one container format an optimizer
// routinely re-wraps without changing the payload's meaning.
func DetectType(data []byte, fallbackExt string) TypeInfo {
	fallbackExt = strings.TrimPrefix(strings.ToLower(fallbackExt), ".")

	mtype := mimetype.Detect(data)
	ext := strings.TrimPrefix(mtype.Extension(), ".")

	if ext == "" || mtype.Is("application/octet-stream") || mtype.Is("text/plain") {
		return TypeInfo{Ext: fallbackExt, Mime: MimeForExt(fallbackExt)}
	}

	if ext == "xml" || fallbackExt == "svg" {
		return TypeInfo{Ext: "svg", Mime: "image/svg+xml"}
	}

	return TypeInfo{Ext: ext, Mime: mtype.String()}
}
