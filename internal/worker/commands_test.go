package worker

import "testing"

func TestIsForbiddenCommand(t *testing.T) {
	cases := []struct {
		cmd  string
		want bool
	}{
		{"terraform apply -auto-approve", true},
		{"terraform plan", false},
		{"kubectl apply -f deploy.yaml", true},
		{"kubectl get pods", false},
		{"helm install myrelease ./chart", true},
		{"aws s3 create-bucket --bucket x", true},
		{"aws s3 ls", false},
		{"go test ./...", false},
	}
	for _, c := range cases {
		if got := IsForbiddenCommand(c.cmd); got != c.want {
			t.Errorf("IsForbiddenCommand(%q) = %v, want %v", c.cmd, got, c.want)
		}
	}
}
