// SPDX-License-Identifier: Apache-2.0

package parsers

import "github.com/vgmedical/casecheck/internal/document"

// NewDefaultPipeline builds a Pipeline with one parser per document type.
func NewDefaultPipeline() *document.Pipeline {
	return document.NewPipeline(
		NewInternalParser(),
		NewHospitalParser(),
		NewDescriptionParser(),
	)
}
