package extract

// PlanChunks partitions an ordered field list into consecutive groups of at
// most maxPerChunk fields. A maxPerChunk of zero or less yields a single
// chunk with every field. Order is preserved; no field is dropped or
// duplicated.
func PlanChunks(fields []string, maxPerChunk int) [][]string {
	if len(fields) == 0 {
		return nil
	}
	if maxPerChunk <= 0 {
		return [][]string{fields}
	}

	chunks := make([][]string, 0, (len(fields)+maxPerChunk-1)/maxPerChunk)
	for start := 0; start < len(fields); start += maxPerChunk {
		end := start + maxPerChunk
		if end > len(fields) {
			end = len(fields)
		}
		chunks = append(chunks, fields[start:end])
	}
	return chunks
}
