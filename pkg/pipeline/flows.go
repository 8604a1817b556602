package pipeline

import (
	"context"

	"github.com/huanfeng/xapk-patcher/pkg/bundle"
	"github.com/huanfeng/xapk-patcher/pkg/manifest"
	"github.com/huanfeng/xapk-patcher/pkg/merge"
	"github.com/huanfeng/xapk-patcher/pkg/project"
	"github.com/huanfeng/xapk-patcher/pkg/smali"
)

type stepFunc func(ctx context.Context, r *run) error

// steps binds every stage of flow, in flow order, to its implementation
func (p *Pipeline) steps(flow Flow) []step {
	var fns map[Stage]stepFunc
	if flow == FlowSplit {
		fns = map[Stage]stepFunc{
			StageExtracted:                   p.extract,
			StageDecompiled:                  p.decompileBundle,
			StageMerged:                      p.mergeSplits,
			StageRecompiledOriginalPreserved: p.recompile(true),
			StageAligned:                     p.align("aligned"),
			StageSigned:                      p.sign("signed"),
			StageVerified:                    p.verify,
			StageRedecodedForManifestFix:     p.redecode,
			StageManifestSanitized:           p.sanitize,
			StageBytecodePatched:             p.patch,
			StageRecompiledFinal:             p.recompile(false),
			StageAlignedFinal:                p.align("final-aligned"),
			StageSignedFinal:                 p.sign("final-signed"),
			StageVerifiedFinal:               p.verify,
		}
	} else {
		fns = map[Stage]stepFunc{
			StageDecompiled:      p.decompileSingle,
			StageBytecodePatched: p.patch,
			StageRecompiled:      p.recompile(false),
			StageAligned:         p.align("aligned"),
			StageSigned:          p.sign("signed"),
			StageVerified:        p.verify,
		}
	}

	stages := flow.Stages()
	out := make([]step, 0, len(stages))
	for _, s := range stages {
		out = append(out, step{stage: s, fn: fns[s]})
	}
	return out
}

func (p *Pipeline) extract(_ context.Context, r *run) error {
	b, err := bundle.Extract(r.input, p.layout.Extracted())
	if err != nil {
		return err
	}
	r.bundle = b
	r.name = b.Metadata.PackageName
	r.logger.Info("Bundle %s: base %s, %d split(s)", b.Metadata.PackageName, b.Base().Name, len(b.Splits()))
	return nil
}

// decompileBundle decodes every package of the bundle without sources. The
// base package's code is decoded later, after the first rebuild.
func (p *Pipeline) decompileBundle(ctx context.Context, r *run) error {
	base := r.bundle.Base()
	for _, pkg := range r.bundle.Packages {
		dir := p.layout.Package(pkg.Name)
		if _, err := p.tools.Decode(ctx, pkg.Path, dir, p.decodeOptions(true)); err != nil {
			return err
		}
		tree, err := project.Open(dir)
		if err != nil {
			return err
		}
		if pkg == base {
			r.base = tree
		} else {
			r.splits = append(r.splits, tree)
		}
	}
	return nil
}

func (p *Pipeline) decompileSingle(ctx context.Context, r *run) error {
	dir := p.layout.Package(r.name)
	if _, err := p.tools.Decode(ctx, r.input, dir, p.decodeOptions(false)); err != nil {
		return err
	}
	tree, err := project.Open(dir)
	if err != nil {
		return err
	}
	r.base = tree
	return nil
}

func (p *Pipeline) mergeSplits(_ context.Context, r *run) error {
	policy, err := merge.ParsePolicy(p.cfg.Merge.MissingTarget)
	if err != nil {
		return err
	}
	m := merge.NewMerger(policy, p.cfg.Merge.OverlayFiles, r.logger)
	res, err := m.Merge(r.base, r.splits)
	if err != nil {
		return err
	}
	r.result.Merge = res
	r.logger.Info("Merged %d split(s): %d entries added, %d files added, %d conflicts",
		len(r.splits), res.AddedEntries, len(res.AddedFiles), len(res.Conflicts)+len(res.FileConflicts))
	return nil
}

func (p *Pipeline) recompile(copyOriginal bool) stepFunc {
	return func(ctx context.Context, r *run) error {
		out := r.base.DistPath(r.name)
		if _, err := p.tools.Build(ctx, r.base.Dir, out, p.buildOptions(copyOriginal)); err != nil {
			return err
		}
		r.artifact = out
		return nil
	}
}

func (p *Pipeline) align(suffix string) stepFunc {
	return func(ctx context.Context, r *run) error {
		out := p.layout.Artifact(r.name + "-" + suffix + apkExtension)
		if _, err := p.tools.Align(ctx, r.artifact, out); err != nil {
			return err
		}
		r.artifact = out
		return nil
	}
}

func (p *Pipeline) sign(suffix string) stepFunc {
	return func(ctx context.Context, r *run) error {
		out := p.layout.Artifact(r.name + "-" + suffix + apkExtension)
		if _, err := p.tools.Sign(ctx, r.artifact, out); err != nil {
			return err
		}
		r.artifact = out
		return nil
	}
}

func (p *Pipeline) verify(ctx context.Context, r *run) error {
	_, err := p.tools.Verify(ctx, r.artifact)
	return err
}

// redecode decodes the signed merged package back over the base tree, with
// sources, so the manifest refers to the rebuilt resource table.
func (p *Pipeline) redecode(ctx context.Context, r *run) error {
	if _, err := p.tools.Decode(ctx, r.artifact, r.base.Dir, p.decodeOptions(false)); err != nil {
		return err
	}
	tree, err := project.Open(r.base.Dir)
	if err != nil {
		return err
	}
	r.base = tree
	return nil
}

func (p *Pipeline) sanitize(_ context.Context, r *run) error {
	res, err := manifest.SanitizeFile(r.base.ManifestPath())
	if err != nil {
		return err
	}
	r.result.Manifest = res
	r.logger.Info("Removed %d split attribute(s) from the manifest", len(res.Removed))
	return nil
}

func (p *Pipeline) patch(_ context.Context, r *run) error {
	report, err := smali.NewPatcher(p.cfg.Patch.TargetSymbol).ApplyTree(r.base)
	if err != nil {
		return err
	}
	r.result.Patches = report
	for _, f := range report.Files {
		r.logger.Debug("Patched %d site(s) in %s", f.Sites, f.Path)
	}
	r.logger.Info("Patched %d call site(s) in %d file(s)", report.Sites, report.Candidates)
	return nil
}
