package config

import "strings"

func templateReplacer(model, prompt, taskID, workdir string) *strings.Replacer {
	return strings.NewReplacer(
		"{model}", model,
		"{prompt}", prompt,
		"{task_id}", taskID,
		"{workdir}", workdir,
	)
}
