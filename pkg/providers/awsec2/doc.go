// Package awsec2 deploys applications as EC2 instances. The bootstrap
// payload travels as base64 user data, so compose documents need a
// cloud-init wrapper or an AMI that interprets them; cloud-config
// payloads boot natively.
package awsec2
