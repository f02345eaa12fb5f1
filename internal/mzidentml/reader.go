package mzidentml

import (
	"encoding/xml"
	"fmt"
	"io"
	"strconv"

	"golang.org/x/net/html/charset"
	"gonum.org/v1/gonum/mat"
)

// Read reads mzIdentML content from io.reader
func Read(reader io.Reader) (MzIdentML, error) {
	var mzIdentML MzIdentML
	d := xml.NewDecoder(reader)
	d.CharsetReader = charset.NewReaderLabel
	err := d.Decode(&mzIdentML.content)
	if err != nil {
		return mzIdentML, err
	}
	mzIdentML.buildRefIndex()
	mzIdentML.buildIdentList()
	return mzIdentML, err
}

func (m *MzIdentML) buildRefIndex() {
	m.pepID2Idx = make(map[string]int, len(m.content.Peptide))
	for i, p := range m.content.Peptide {
		m.pepID2Idx[p.ID] = i
	}
	m.evidenceID2Idx = make(map[string]int, len(m.content.PeptideEvidence))
	for i, e := range m.content.PeptideEvidence {
		m.evidenceID2Idx[e.ID] = i
	}
}

func (m *MzIdentML) buildIdentList() {
	for i := range m.content.SpectrumIdentificationResult {
		for j := range m.content.SpectrumIdentificationResult[i].SpectrumIdentificationItem {
			m.identList = append(m.identList, identRef{resultIdx: i, itemIdx: j})
		}
	}
}

// NumIdents returns the total number of identifications in the mzIdentML file
// Note that for some spectra, multiple identifications may be present
// The identifications can be accessed using the Ident() method, which takes
// an index as argument. The index runs from 0 to NumIdents()-1
func (m *MzIdentML) NumIdents() int {
	return len(m.identList)
}

// Ident returns a spectrum identification from the mzIdentML file.
// Parameter i is the index of the identification to return. The index runs
// from 0 to NumIdents()-1
func (m *MzIdentML) Ident(i int) (Identification, error) {
	var ident Identification

	if i < 0 || i >= len(m.identList) {
		return ident, ErrInvalidIdentIndex
	}
	result := &m.content.SpectrumIdentificationResult[m.identList[i].resultIdx]
	item := &result.SpectrumIdentificationItem[m.identList[i].itemIdx]

	ident.ID = item.ID
	ident.SpecID = result.SpectrumID
	ident.Rank = item.Rank
	ident.Charge = item.ChargeState
	ident.CalcMz = item.CalculatedMassToCharge
	ident.ExpMz = item.ExperimentalMassToCharge
	if item.PeptideRef != `` {
		pepIdx, ok := m.pepID2Idx[item.PeptideRef]
		if !ok {
			return ident, fmt.Errorf("%w: peptide %s", ErrUnknownReference, item.PeptideRef)
		}
		ident.PepSeq = m.content.Peptide[pepIdx].PeptideSequence
	}

	// The identification is a decoy only if every protein it maps to
	// is a decoy
	decoys := 0
	for _, ref := range item.PeptideEvidenceRef {
		evIdx, ok := m.evidenceID2Idx[ref.PeptideEvidenceRef]
		if !ok {
			return ident, fmt.Errorf("%w: peptide evidence %s", ErrUnknownReference, ref.PeptideEvidenceRef)
		}
		if m.content.PeptideEvidence[evIdx].IsDecoy {
			decoys++
		}
	}
	ident.IsDecoy = decoys > 0 && decoys == len(item.PeptideEvidenceRef)

	// Collect numeric CV terms and user params, the scores are in there
	for _, params := range [][]cvParam{item.CvPar, item.UserPar} {
		for _, cv := range params {
			v, err := strconv.ParseFloat(cv.Value, 64)
			if err != nil {
				continue
			}
			name := cv.Name
			if name == `` {
				name = cv.Accession
			}
			ident.Scores = append(ident.Scores, Score{Name: name, Value: v})
		}
	}
	return ident, nil
}

// PSMTable contains the features and target/decoy labels of the
// identifications
type PSMTable struct {
	Names    []string   // feature names
	Features *mat.Dense // one row per identification
	Labels   []int      // +1 target, -1 decoy
	IDs      []string   // identification IDs
}

// Names of the features that are not scores
const (
	FeatureCharge   = `charge`
	FeaturePPMError = `ppm_error`
)

// PSMs collects the identifications with rank at most maxRank (all
// identifications if maxRank is 0) into a feature table. Features are
// the charge state, the precursor m/z error (ppm) and all numeric scores,
// ordered as first encountered. Scores missing for an identification
// are 0.
func (m *MzIdentML) PSMs(maxRank int) (PSMTable, error) {
	var t PSMTable
	t.Names = []string{FeatureCharge, FeaturePPMError}
	nameIdx := make(map[string]int)
	var rows [][]float64

	for i := 0; i < m.NumIdents(); i++ {
		ident, err := m.Ident(i)
		if err != nil {
			return t, err
		}
		if maxRank > 0 && ident.Rank > maxRank {
			continue
		}
		row := make([]float64, len(t.Names), len(t.Names)+len(ident.Scores))
		row[0] = float64(ident.Charge)
		if ident.CalcMz > 0 {
			row[1] = (ident.ExpMz - ident.CalcMz) / ident.CalcMz * 1e6
		}
		for _, s := range ident.Scores {
			j, ok := nameIdx[s.Name]
			if !ok {
				j = len(t.Names)
				nameIdx[s.Name] = j
				t.Names = append(t.Names, s.Name)
			}
			for len(row) <= j {
				row = append(row, 0)
			}
			row[j] = s.Value
		}
		rows = append(rows, row)
		label := 1
		if ident.IsDecoy {
			label = -1
		}
		t.Labels = append(t.Labels, label)
		t.IDs = append(t.IDs, ident.ID)
	}
	if len(rows) == 0 {
		return t, ErrNoIdentifications
	}

	t.Features = mat.NewDense(len(rows), len(t.Names), nil)
	for i, row := range rows {
		for j, v := range row {
			t.Features.Set(i, j, v)
		}
	}
	return t, nil
}
