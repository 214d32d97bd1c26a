// Copyright (c) 2024 SIROS Foundation
// SPDX-License-Identifier: BSD-2-Clause

/*
Package msh implements the outbound "create security headers" step of an
AS4 Message Service Handler.

# Security Handler

[SecurityHandler] runs once per outbound message. When the message asks
for security headers and a P-Mode security configuration applies, the
envelope is parsed, the role and default WS-Security headers are built by
a [wssec.Orchestrator], and the secured envelope is written back:

	handler := msh.NewSecurityHandler(orchestrator,
		msh.WithResolver(msh.NewPModeResolver(pmodes)))
	result, err := handler.Process(ctx, outbound)

Messages that do not request security, or have no configuration, pass
through untouched. A message whose envelope cannot be converted is left
unchanged and [ErrDocumentConversion] is returned.

# Pipeline

[Pipeline] runs the handler on a pool of workers. Messages are submitted
to a bounded queue and outcomes are delivered on a results channel:

	p := msh.NewPipeline(handler, msh.PipelineConfig{Workers: 4})
	p.Start(ctx)
	defer p.Stop()

	if err := p.Submit(ctx, outbound); err != nil {
		return err
	}
	outcome := <-p.Results()

Every message is processed with its own credential store, so concurrent
messages never see each other's secrets.

# References

  - OASIS ebMS 3.0 Processing: https://docs.oasis-open.org/ebxml-msg/ebms/v3.0/core/os/
  - OASIS AS4 Profile: https://docs.oasis-open.org/ebxml-msg/ebms/v3.0/profiles/AS4-profile/v1.0/
*/
package msh
