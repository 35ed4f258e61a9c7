package observers

import (
	einocb "github.com/cloudwego/eino/callbacks"
	callbackHelper "github.com/cloudwego/eino/utils/callbacks"
)

// NewAllCallbacks returns every observer handler: component logging for
// prompts and models plus node timing.
func NewAllCallbacks() []einocb.Handler {
	components := callbackHelper.NewHandlerHelper().
		ChatModel(newModelHandler()).
		Prompt(newPromptHandler()).
		Handler()

	return []einocb.Handler{components, NewNodeCallbacks()}
}
