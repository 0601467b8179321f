package grpc

import (
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/pluginrt/hostrt/hosterrors"
	"github.com/pluginrt/hostrt/pipeline"
	"github.com/pluginrt/hostrt/toolid"
)

// descriptorsToStruct encodes a descriptor slice under the "tools" key, the
// shape both ListTools and SearchTools respond with (§6).
func descriptorsToStruct(descriptors []toolid.Descriptor) (*structpb.Struct, error) {
	tools := make([]any, len(descriptors))
	for i, d := range descriptors {
		tools[i] = descriptorToMap(d)
	}
	return structpb.NewStruct(map[string]any{"tools": tools})
}

func descriptorToMap(d toolid.Descriptor) map[string]any {
	m := map[string]any{
		"id":            d.ID.External(),
		"crate_version": d.CrateVersion,
		"name":          d.Name,
		"description":   d.Description,
		"input_schema":  d.InputSchema,
		"output_schema": d.OutputSchema,
	}
	if d.CredentialSchema != "" {
		m["credential_schema"] = d.CredentialSchema
	}
	if len(d.Capabilities) > 0 {
		m["capabilities"] = stringsToAny(d.Capabilities)
	}
	if len(d.Tags) > 0 {
		m["tags"] = stringsToAny(d.Tags)
	}
	return m
}

func structToDescriptors(s *structpb.Struct) []toolid.Descriptor {
	if s == nil {
		return nil
	}
	raw, ok := s.AsMap()["tools"].([]any)
	if !ok {
		return nil
	}
	out := make([]toolid.Descriptor, 0, len(raw))
	for _, item := range raw {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		id, _ := m["id"].(string)
		qid, ok := toolid.ParseExternal(id)
		if !ok {
			continue
		}
		d := toolid.Descriptor{
			ID:           qid,
			CrateVersion: stringField(m, "crate_version"),
			Name:         stringField(m, "name"),
			Description:  stringField(m, "description"),
			InputSchema:  stringField(m, "input_schema"),
			OutputSchema: stringField(m, "output_schema"),
		}
		d.CredentialSchema = stringField(m, "credential_schema")
		d.Capabilities = anyToStrings(m["capabilities"])
		d.Tags = anyToStrings(m["tags"])
		out = append(out, d)
	}
	return out
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

func stringsToAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

func anyToStrings(v any) []string {
	raw, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// searchQueryToStruct encodes a SearchTools request's embedding and top-k.
func searchQueryToStruct(embedding []float32, topK int) (*structpb.Struct, error) {
	vec := make([]any, len(embedding))
	for i, f := range embedding {
		vec[i] = float64(f)
	}
	return structpb.NewStruct(map[string]any{
		"embedding": vec,
		"top_k":     float64(topK),
	})
}

// structToSearchQuery decodes a SearchTools request's "embedding" (array of
// numbers) and "top_k" fields.
func structToSearchQuery(req *structpb.Struct) (embedding []float32, topK int) {
	if req == nil {
		return nil, 0
	}
	fields := req.AsMap()
	if raw, ok := fields["embedding"].([]any); ok {
		embedding = make([]float32, len(raw))
		for i, v := range raw {
			if f, ok := v.(float64); ok {
				embedding[i] = float32(f)
			}
		}
	}
	if k, ok := fields["top_k"].(float64); ok {
		topK = int(k)
	}
	return embedding, topK
}

// requestToStruct encodes a pipeline.Request into the CallTool wire request
// shape (§6). structpb.Value represents every JSON number as a float64, so
// integers outside float64's exact range lose precision crossing this
// transport; policy.DecodeJSON's json.Number handling only protects the
// in-process path, not this wire hop.
func requestToStruct(req pipeline.Request) (*structpb.Struct, error) {
	fields := map[string]any{
		"tool": req.ToolID.External(),
	}
	if len(req.Input) > 0 {
		var input any
		if err := json.Unmarshal(req.Input, &input); err != nil {
			return nil, fmt.Errorf("transport/grpc: decode input json: %w", err)
		}
		fields["input"] = input
	}
	if req.RequestID != "" {
		fields["request_id"] = req.RequestID
	}
	if req.SessionID != "" {
		fields["session_id"] = req.SessionID
	}
	if req.UserID != "" {
		fields["user_id"] = req.UserID
	}
	if len(req.UserCredentials) > 0 {
		fields["user_credentials"] = credentialsToAny(req.UserCredentials)
	}
	return structpb.NewStruct(fields)
}

func credentialsToAny(creds pipeline.Credentials) map[string]any {
	out := make(map[string]any, len(creds))
	for provider, kv := range creds {
		entry := make(map[string]any, len(kv))
		for k, v := range kv {
			entry[k] = v
		}
		out[provider] = entry
	}
	return out
}

// structToRequest decodes a CallTool request into a pipeline.Request (§6).
func structToRequest(req *structpb.Struct) (pipeline.Request, error) {
	if req == nil {
		return pipeline.Request{}, fmt.Errorf("transport/grpc: nil CallTool request")
	}
	fields := req.AsMap()

	name, _ := fields["tool"].(string)
	id, ok := toolid.ParseExternal(name)
	if !ok {
		return pipeline.Request{}, fmt.Errorf("transport/grpc: malformed tool name %q", name)
	}

	var inputJSON []byte
	if input, ok := fields["input"]; ok {
		b, err := json.Marshal(input)
		if err != nil {
			return pipeline.Request{}, fmt.Errorf("transport/grpc: encode input: %w", err)
		}
		inputJSON = b
	}

	creds := pipeline.Credentials{}
	if raw, ok := fields["user_credentials"].(map[string]any); ok {
		for provider, v := range raw {
			if kv, ok := v.(map[string]any); ok {
				entry := make(map[string]string, len(kv))
				for k, vv := range kv {
					if s, ok := vv.(string); ok {
						entry[k] = s
					}
				}
				creds[provider] = entry
			}
		}
	}

	return pipeline.Request{
		ToolID:          id,
		Input:           inputJSON,
		RequestID:       stringField(fields, "request_id"),
		SessionID:       stringField(fields, "session_id"),
		UserID:          stringField(fields, "user_id"),
		UserCredentials: creds,
	}, nil
}

// responseToStruct encodes a pipeline.Response into the CallTool wire
// response shape (§6): "output" on success, "error"/"kind" on failure.
func responseToStruct(resp pipeline.Response) (*structpb.Struct, error) {
	fields := map[string]any{}
	if resp.Ok() {
		if len(resp.Output) > 0 {
			var out any
			if err := json.Unmarshal(resp.Output, &out); err == nil {
				fields["output"] = out
			}
		}
		return structpb.NewStruct(fields)
	}
	fields["error"] = resp.Error
	fields["kind"] = string(resp.Kind)
	return structpb.NewStruct(fields)
}

// structToResponse decodes a CallTool wire response back into a
// pipeline.Response, reconstructing its output bytes or error/kind.
func structToResponse(s *structpb.Struct) (pipeline.Response, error) {
	if s == nil {
		return pipeline.Response{}, fmt.Errorf("transport/grpc: nil CallTool response")
	}
	fields := s.AsMap()
	if errMsg, ok := fields["error"].(string); ok && errMsg != "" {
		return pipeline.Response{
			Error: errMsg,
			Kind:  hosterrors.Kind(stringField(fields, "kind")),
		}, nil
	}
	var output []byte
	if out, ok := fields["output"]; ok && out != nil {
		b, err := json.Marshal(out)
		if err != nil {
			return pipeline.Response{}, fmt.Errorf("transport/grpc: encode output: %w", err)
		}
		output = b
	}
	return pipeline.Response{Output: output}, nil
}
