package api

// buildOpenAPIDoc returns an OpenAPI 3.1 document covering every route.
func buildOpenAPIDoc(maxJSONSize int64) map[string]any {
	errorResponse := func(description string) map[string]any {
		return map[string]any{
			"description": description,
			"content": map[string]any{
				"application/json": map[string]any{
					"schema": map[string]any{"$ref": "#/components/schemas/Error"},
				},
			},
		}
	}
	plain := func(description string) map[string]any {
		return map[string]any{
			"description": description,
			"content": map[string]any{
				"text/plain": map[string]any{"schema": map[string]any{"type": "string"}},
			},
		}
	}

	cleanError := func(description string) map[string]any {
		return map[string]any{
			"description": description,
			"content": map[string]any{
				"application/json": map[string]any{
					"schema": map[string]any{"$ref": "#/components/schemas/CleanResponse"},
				},
			},
		}
	}

	paths := map[string]any{
		"/": map[string]any{
			"get": map[string]any{
				"operationId": "index",
				"summary":     "Service notice",
				"responses":   map[string]any{"200": plain("Notice text")},
			},
		},
		"/healthz": map[string]any{
			"get": map[string]any{
				"operationId": "healthz",
				"summary":     "Liveness and batch counters",
				"responses": map[string]any{
					"200": map[string]any{"description": "Service is up"},
				},
			},
		},
		"/clean": map[string]any{
			"post": map[string]any{
				"operationId": "clean",
				"summary":     "Clean a batch of URLs; results are in submission order",
				"requestBody": map[string]any{
					"required": true,
					"content": map[string]any{
						"application/json": map[string]any{
							"schema": map[string]any{"$ref": "#/components/schemas/CleanRequest"},
						},
					},
				},
				"responses": map[string]any{
					"200": map[string]any{
						"description": "One entry per job",
						"content": map[string]any{
							"application/json": map[string]any{
								"schema": map[string]any{"$ref": "#/components/schemas/CleanResponse"},
							},
						},
					},
					"400": cleanError("Invalid JSON body"),
					"413": cleanError("Body larger than max JSON size"),
					"500": cleanError("Batch failed as a whole"),
				},
			},
		},
		"/get-max-json-size": map[string]any{
			"get": map[string]any{
				"operationId": "getMaxJSONSize",
				"summary":     "Largest accepted /clean body, in bytes",
				"responses":   map[string]any{"200": plain("Decimal byte count")},
			},
		},
		"/get-config": map[string]any{
			"get": map[string]any{
				"operationId": "getConfig",
				"summary":     "Active cleaning rules; ETag is the rules fingerprint",
				"responses": map[string]any{
					"200": map[string]any{"description": "Rules YAML"},
					"304": map[string]any{"description": "Rules unchanged"},
				},
			},
		},
		"/host-parts": map[string]any{
			"get": map[string]any{
				"operationId": "hostParts",
				"summary":     "Split a host around its public suffix",
				"parameters": []any{
					map[string]any{
						"name":     "host",
						"in":       "query",
						"required": true,
						"schema":   map[string]any{"type": "string"},
					},
				},
				"responses": map[string]any{
					"200": map[string]any{"description": "Host parts"},
					"400": errorResponse("Unparseable host"),
				},
			},
		},
	}

	return map[string]any{
		"openapi": "3.1.0",
		"info": map[string]any{
			"title":   "urlclean",
			"version": "1.0",
		},
		"paths": paths,
		"components": map[string]any{
			"schemas": map[string]any{
				"CleanRequest": map[string]any{
					"type":        "object",
					"description": "Body must not exceed the max JSON size",
					"x-max-bytes": maxJSONSize,
					"properties": map[string]any{
						"jobs":        map[string]any{"type": "array"},
						"urls":        map[string]any{"type": "array", "description": "Alias of jobs"},
						"context":     map[string]any{"type": "object"},
						"params_diff": map[string]any{"type": "object"},
					},
				},
				"CleanResponse": map[string]any{
					"type":        "object",
					"description": "Exactly one of Ok or Err",
					"properties": map[string]any{
						"Ok": map[string]any{
							"type": "object",
							"properties": map[string]any{
								"urls": map[string]any{
									"type": "array",
									"items": map[string]any{
										"type":        "object",
										"description": `{"Ok": {"Ok": url}} | {"Ok": {"Err": JobError}} | {"Err": JobError}`,
										"properties": map[string]any{
											"Ok": map[string]any{
												"type": "object",
												"properties": map[string]any{
													"Ok":  map[string]any{"type": "string"},
													"Err": map[string]any{"$ref": "#/components/schemas/JobError"},
												},
											},
											"Err": map[string]any{"$ref": "#/components/schemas/JobError"},
										},
									},
								},
							},
						},
						"Err": map[string]any{"$ref": "#/components/schemas/Error"},
					},
				},
				"JobError": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"message": map[string]any{"type": "string"},
						"variant": map[string]any{"type": "string"},
					},
				},
				"Error": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"status": map[string]any{"type": "integer"},
						"reason": map[string]any{"type": "string"},
					},
				},
			},
		},
	}
}
