package device

func platformListers() []SourceLister {
	return []SourceLister{NewAVDeviceLister()}
}
