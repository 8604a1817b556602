package pipeline

// Stage names one state of the build state machine
type Stage string

const (
	StageExtracted                   Stage = "Extracted"
	StageDecompiled                  Stage = "Decompiled"
	StageMerged                      Stage = "Merged"
	StageRecompiledOriginalPreserved Stage = "RecompiledOriginalPreserved"
	StageAligned                     Stage = "Aligned"
	StageSigned                      Stage = "Signed"
	StageVerified                    Stage = "Verified"
	StageRedecodedForManifestFix     Stage = "RedecodedForManifestFix"
	StageManifestSanitized           Stage = "ManifestSanitized"
	StageBytecodePatched             Stage = "BytecodePatched"
	StageRecompiled                  Stage = "Recompiled"
	StageRecompiledFinal             Stage = "RecompiledFinal"
	StageAlignedFinal                Stage = "AlignedFinal"
	StageSignedFinal                 Stage = "SignedFinal"
	StageVerifiedFinal               Stage = "VerifiedFinal"
)

// Flow names the two shapes a run can take
type Flow string

const (
	FlowSplit  Flow = "split"
	FlowSingle Flow = "single"
)

// SplitFlow is the stage order for bundles. The base package is built,
// decoded again so the manifest carries final resource identifiers, then
// built a second time.
var SplitFlow = []Stage{
	StageExtracted,
	StageDecompiled,
	StageMerged,
	StageRecompiledOriginalPreserved,
	StageAligned,
	StageSigned,
	StageVerified,
	StageRedecodedForManifestFix,
	StageManifestSanitized,
	StageBytecodePatched,
	StageRecompiledFinal,
	StageAlignedFinal,
	StageSignedFinal,
	StageVerifiedFinal,
}

// SingleFlow is the stage order for a plain package
var SingleFlow = []Stage{
	StageDecompiled,
	StageBytecodePatched,
	StageRecompiled,
	StageAligned,
	StageSigned,
	StageVerified,
}

// Stages returns the stage order of a flow
func (f Flow) Stages() []Stage {
	if f == FlowSplit {
		return append([]Stage(nil), SplitFlow...)
	}
	return append([]Stage(nil), SingleFlow...)
}
