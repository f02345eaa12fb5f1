package mzidentml

import (
	"encoding/xml"
	"errors"
)

// Types for parsing mzIdentML

// MzIdentML holds only the part of mzIdentML files
// in which we are interrested
type MzIdentML struct {
	pepID2Idx      map[string]int
	evidenceID2Idx map[string]int
	identList      []identRef
	content        mzIdentMLContent
}

type identRef struct {
	resultIdx int // Index into SpectrumIdentificationResult
	itemIdx   int // Index into SpectrumIdentificationItem
}

// Identification is a single peptide-spectrum match
type Identification struct {
	ID      string
	PepSeq  string
	SpecID  string
	Rank    int
	Charge  int
	CalcMz  float64
	ExpMz   float64
	IsDecoy bool // true if all peptide evidences are decoys
	Scores  []Score
}

// Score is a numeric score of an identification
type Score struct {
	Name  string // CV name, or accession if the name is empty
	Value float64
}

type mzIdentMLContent struct {
	XMLName                      xml.Name                       `xml:"MzIdentML"`
	Peptide                      []peptide                      `xml:"SequenceCollection>Peptide"`
	PeptideEvidence              []peptideEvidence              `xml:"SequenceCollection>PeptideEvidence"`
	SpectrumIdentificationResult []spectrumIdentificationResult `xml:"DataCollection>AnalysisData>SpectrumIdentificationList>SpectrumIdentificationResult"`
}

type peptide struct {
	ID              string `xml:"id,attr"`
	PeptideSequence string
}

type peptideEvidence struct {
	ID      string `xml:"id,attr"`
	IsDecoy bool   `xml:"isDecoy,attr"`
}

type spectrumIdentificationResult struct {
	SpectrumID                 string `xml:"spectrumID,attr"`
	SpectrumIdentificationItem []spectrumIdentificationItem
}

type spectrumIdentificationItem struct {
	ID                       string               `xml:"id,attr"`
	ChargeState              int                  `xml:"chargeState,attr"`
	Rank                     int                  `xml:"rank,attr"`
	CalculatedMassToCharge   float64              `xml:"calculatedMassToCharge,attr"`
	ExperimentalMassToCharge float64              `xml:"experimentalMassToCharge,attr"`
	PeptideRef               string               `xml:"peptide_ref,attr"`
	PeptideEvidenceRef       []peptideEvidenceRef `xml:"PeptideEvidenceRef"`
	CvPar                    []cvParam            `xml:"cvParam"`
	UserPar                  []cvParam            `xml:"userParam"`
}

type peptideEvidenceRef struct {
	PeptideEvidenceRef string `xml:"peptideEvidence_ref,attr"`
}

type cvParam struct {
	Accession string `xml:"accession,attr"`
	Name      string `xml:"name,attr"`
	Value     string `xml:"value,attr"`
}

var (
	ErrInvalidIdentIndex = errors.New("mzIdentML: invalid identification index")
	ErrUnknownReference  = errors.New("mzIdentML: reference to unknown element")
	ErrNoIdentifications = errors.New("mzIdentML: no identifications")
)
