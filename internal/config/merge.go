package config

// MergePlugins merges plugin lists scope by scope (global, then service,
// then route). An entry in a later list overrides a same-named entry from
// an earlier scope in place, keeping the earlier position; new names
// append in order. Disabled entries still participate so a route can turn
// a global plugin off.
func MergePlugins(scopes ...[]PluginConfig) []PluginConfig {
	var merged []PluginConfig
	index := make(map[string]int)

	for _, scope := range scopes {
		for _, p := range scope {
			if i, ok := index[p.Name]; ok {
				merged[i] = p
				continue
			}
			index[p.Name] = len(merged)
			merged = append(merged, p)
		}
	}
	return merged
}
