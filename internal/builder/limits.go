package builder

// Fixed rough per-item weights for the payload-size estimate. The estimate
// is deliberately coarse: it exists to catch pathological cascades, not to
// measure real encoded size.
const (
	entityWeightBytes       = 2048
	invalidationWeightBytes = 512
	metadataWeightBytes     = 1024

	sizeStageKeep     = 50
	sizeStageMinCount = 100
)

// applySizeLimits truncates the response arrays in two stages. Stage one
// caps each array independently at its configured maximum, flagging every
// truncation. Stage two estimates the payload size from fixed per-item
// weights and, only when the estimate exceeds the size budget and the
// combined entity count exceeds sizeStageMinCount, keeps just the first
// sizeStageKeep entries of updated and deleted. Small and medium responses
// never pay more than the stage-one count checks.
func (b *core) applySizeLimits(c *Cascade) {
	if len(c.Updated) > b.opt.MaxUpdatedEntities {
		c.Updated = c.Updated[:b.opt.MaxUpdatedEntities]
		c.Metadata.TruncatedUpdated = true
	}
	if len(c.Deleted) > b.opt.MaxDeletedEntities {
		c.Deleted = c.Deleted[:b.opt.MaxDeletedEntities]
		c.Metadata.TruncatedDeleted = true
	}
	if len(c.Invalidations) > b.opt.MaxInvalidations {
		c.Invalidations = c.Invalidations[:b.opt.MaxInvalidations]
		c.Metadata.TruncatedInvalidations = true
	}

	estimate := len(c.Updated)*entityWeightBytes +
		len(c.Deleted)*entityWeightBytes +
		len(c.Invalidations)*invalidationWeightBytes +
		metadataWeightBytes
	budget := int(b.opt.MaxResponseSizeMB * 1024 * 1024)
	if estimate > budget && len(c.Updated)+len(c.Deleted) > sizeStageMinCount {
		if len(c.Updated) > sizeStageKeep {
			c.Updated = c.Updated[:sizeStageKeep]
		}
		if len(c.Deleted) > sizeStageKeep {
			c.Deleted = c.Deleted[:sizeStageKeep]
		}
		c.Metadata.TruncatedSize = true
	}
}
